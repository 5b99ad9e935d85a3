package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/db/pagination"
)

type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// Entry is what callers report; actor, request and time come from the context.
type Entry struct {
	Action     string
	Collection string
	DocID      string
	Changes    map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	StoreID    string
	Action     string
	Collection string
	DocID      string
	Actor      string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []*records.AuditLogEntry `json:"audit_logs"`
}

type ListFilter struct {
	Action     string
	Collection string
	DocID      string
	Actor      string
	StartAt    *time.Time
	EndAt      *time.Time
}

type Repository interface {
	Insert(ctx context.Context, storeID string, entry *records.AuditLogEntry) error
	List(ctx context.Context, storeID string, filter ListFilter, page pagination.Pagination) ([]*records.AuditLogEntry, *pagination.PageInfo, error)
}

type Service interface {
	AuditLog(ctx context.Context, storeID string, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidStore     = errors.New("invalid_store")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
