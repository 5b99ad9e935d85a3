// Package chatbot manages the storefront assistant configuration and its numbered version history.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/counter"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// CounterName numbers saved configurations per store.
const CounterName = "chatbotVersions"

const (
	defaultVersionLimit = 20
	maxVersionLimit     = 100
)

var (
	ErrInvalidStore    = errors.New("invalid_store")
	ErrNotConfigured   = errors.New("chatbot_not_configured")
	ErrVersionNotFound = errors.New("chatbot_version_not_found")
)

var Module = fx.Module("chatbot",
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Registry *records.Registry
	Counter  *counter.Counter
	AuditSvc auditdomain.Service `optional:"true"`
	Log      *zap.Logger
}

type Service struct {
	reg      *records.Registry
	counter  *counter.Counter
	auditSvc auditdomain.Service
	log      *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		reg:      p.Registry,
		counter:  p.Counter,
		auditSvc: p.AuditSvc,
		log:      p.Log.Named("chatbot.service"),
	}
}

// VersionID is the document id of a numbered version; zero padding keeps ids in version order.
func VersionID(version int64) string {
	return fmt.Sprintf("v%06d", version)
}

func (s *Service) Get(ctx context.Context, storeID string) (*records.ChatbotConfig, error) {
	cfg, err := s.reg.Chatbot().Get(ctx, storeID, records.ChatbotConfigID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotConfigured
	}
	return cfg, err
}

// Save validates cfg, assigns the next version number and writes the current config and the version snapshot
// in one atomic batch.
func (s *Service) Save(ctx context.Context, storeID string, cfg records.ChatbotConfig, note string) (*records.ChatbotConfig, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, ErrInvalidStore
	}

	cfg.ID = ""
	cfg.UpdatedBy = tenantctx.Actor(ctx)
	created := true
	if current, err := s.reg.Chatbot().Get(ctx, storeID, records.ChatbotConfigID); err == nil {
		cfg.CreatedAt = current.CreatedAt
		created = false
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}
	records.Stamp(&cfg, s.reg.Now(), created)
	if err := records.Validate(&cfg); err != nil {
		return nil, err
	}

	version, err := s.counter.Next(ctx, storeID, CounterName)
	if err != nil {
		return nil, err
	}
	cfg.Version = version

	current, err := s.reg.Chatbot().SetWrite(storeID, records.ChatbotConfigID, &cfg)
	if err != nil {
		return nil, err
	}
	snapshot := &records.ChatbotVersion{
		ID:        VersionID(version),
		Version:   version,
		Config:    cfg,
		Note:      strings.TrimSpace(note),
		CreatedBy: cfg.UpdatedBy,
		CreatedAt: cfg.UpdatedAt,
	}
	_, history, err := s.reg.ChatbotVersions().CreateWrite(storeID, snapshot)
	if err != nil {
		return nil, err
	}
	if err := s.reg.Chatbot().Commit(ctx, current, history); err != nil {
		return nil, err
	}

	s.log.Info("chatbot config saved",
		zap.String("store_id", storeID),
		zap.Int64("version", version),
	)
	s.audit(ctx, storeID, "chatbot.save", map[string]any{"version": version, "note": snapshot.Note})
	cfg.ID = records.ChatbotConfigID
	return &cfg, nil
}

// ListVersions returns the newest versions first.
func (s *Service) ListVersions(ctx context.Context, storeID string, limit int) ([]*records.ChatbotVersion, error) {
	if limit <= 0 {
		limit = defaultVersionLimit
	}
	if limit > maxVersionLimit {
		limit = maxVersionLimit
	}
	return s.reg.ChatbotVersions().List(ctx, storeID, repository.ListOptions{
		OrderBy: "version",
		Desc:    true,
		Limit:   limit,
	})
}

// Restore saves the config of an earlier version as a new version.
func (s *Service) Restore(ctx context.Context, storeID string, version int64) (*records.ChatbotConfig, error) {
	if version <= 0 {
		return nil, ErrVersionNotFound
	}
	old, err := s.reg.ChatbotVersions().Get(ctx, storeID, VersionID(version))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Save(ctx, storeID, old.Config, fmt.Sprintf("restored from version %d", version))
}

func (s *Service) audit(ctx context.Context, storeID, action string, changes map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		Action:     action,
		Collection: records.KindChatbot.Collection(),
		DocID:      records.ChatbotConfigID,
		Changes:    changes,
	}
	if err := s.auditSvc.AuditLog(ctx, storeID, entry); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
