package service

import (
	"context"
	"errors"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/audit/masking"
	obscontext "github.com/smallbiznis/storeadmin/internal/observability/context"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/db/pagination"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo auditdomain.Repository
}

type Service struct {
	log  *zap.Logger
	repo auditdomain.Repository
	now  func() time.Time
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		log:  p.Log.Named("audit.service"),
		repo: p.Repo,
		now:  time.Now,
	}
}

func (s *Service) AuditLog(ctx context.Context, storeID string, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	collection := strings.TrimSpace(entry.Collection)
	if collection == "" {
		collection = "unknown"
	}

	actor := tenantctx.Actor(ctx)
	if actor == "" {
		if _, id := obscontext.ActorFromContext(ctx); id != "" {
			actor = id
		} else {
			actor = string(auditdomain.ActorTypeSystem)
		}
	}

	log := &records.AuditLogEntry{
		Actor:      actor,
		Action:     action,
		Collection: collection,
		DocID:      strings.TrimSpace(entry.DocID),
		Changes:    masking.MaskSensitive(entry.Changes),
		RequestID:  obscontext.RequestIDFromContext(ctx),
		IPAddress:  obscontext.ClientIPFromContext(ctx),
		CreatedAt:  s.now().UTC().Truncate(time.Second),
	}

	if err := s.repo.Insert(ctx, storeID, log); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("store_id", storeID),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if strings.TrimSpace(req.StoreID) == "" {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidStore
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, pageInfo, err := s.repo.List(ctx, req.StoreID, auditdomain.ListFilter{
		Action:     req.Action,
		Collection: req.Collection,
		DocID:      req.DocID,
		Actor:      strings.ToLower(strings.TrimSpace(req.Actor)),
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
	}, pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize})
	if errors.Is(err, docstore.ErrInvalidReference) && strings.TrimSpace(req.PageToken) != "" {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
