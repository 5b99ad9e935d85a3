package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/db/pagination"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
)

type repo struct {
	logs *repository.Repository[records.AuditLogEntry]
}

func Provide(reg *records.Registry) domain.Repository {
	return &repo{logs: reg.AuditLogs()}
}

func (r *repo) Insert(ctx context.Context, storeID string, entry *records.AuditLogEntry) error {
	if entry == nil {
		return nil
	}
	_, err := r.logs.Create(ctx, storeID, entry)
	return err
}

// List pages newest first. created_at is stored at second precision in UTC, so RFC3339 strings order like times.
func (r *repo) List(ctx context.Context, storeID string, filter domain.ListFilter, page pagination.Pagination) ([]*records.AuditLogEntry, *pagination.PageInfo, error) {
	var filters []docstore.Filter
	eq := func(field, value string) {
		if value = strings.TrimSpace(value); value != "" {
			filters = append(filters, docstore.Filter{Field: field, Op: docstore.OpEqual, Value: value})
		}
	}
	eq("action", filter.Action)
	eq("collection", filter.Collection)
	eq("doc_id", filter.DocID)
	eq("actor", filter.Actor)
	if filter.StartAt != nil {
		filters = append(filters, docstore.Filter{Field: "created_at", Op: docstore.OpGreaterOrEqual, Value: filter.StartAt.UTC().Format(time.RFC3339)})
	}
	if filter.EndAt != nil {
		filters = append(filters, docstore.Filter{Field: "created_at", Op: docstore.OpLessOrEqual, Value: filter.EndAt.UTC().Format(time.RFC3339)})
	}

	return r.logs.Page(ctx, storeID, repository.ListOptions{
		Filters: filters,
		OrderBy: "created_at",
		Desc:    true,
	}, page)
}
