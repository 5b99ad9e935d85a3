package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleSuperAdmin = "role:super_admin"
	RoleStoreAdmin = "role:store_admin"

	globalDomain = "*"
)

const (
	ObjectRecord   = "record"
	ObjectTenant   = "tenant"
	ObjectWizard   = "wizard"
	ObjectUpload   = "upload"
	ObjectAuditLog = "audit_log"
	ObjectChatbot  = "chatbot"
)

const (
	ActionRecordView   = "record.view"
	ActionRecordCreate = "record.create"
	ActionRecordUpdate = "record.update"
	ActionRecordDelete = "record.delete"

	ActionTenantView    = "tenant.view"
	ActionTenantList    = "tenant.list"
	ActionTenantCreate  = "tenant.create"
	ActionTenantDelete  = "tenant.delete"
	ActionTenantAdmins  = "tenant.admins"
	ActionTenantDomain  = "tenant.domain"
	ActionTenantMigrate = "tenant.migrate"

	ActionWizardRun    = "wizard.run"
	ActionUploadCreate = "upload.create"

	ActionAuditLogView = "audit_log.view"

	ActionChatbotManage = "chatbot.manage"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, storeID, object, action string) error {
	subject, err := subjectFor(actor)
	if err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	domain := globalDomain
	if storeID = strings.TrimSpace(storeID); storeID != "" {
		domain = storeDomain(storeID)
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor", subject),
			zap.String("store_id", storeID),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, storeID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) IsSuperAdmin(actor string) (bool, error) {
	subject, err := subjectFor(actor)
	if err != nil {
		return false, err
	}
	return s.enforcer.HasGroupingPolicy(subject, RoleSuperAdmin, globalDomain)
}

func (s *ServiceImpl) GrantSuperAdmin(actor string) error {
	subject, err := subjectFor(actor)
	if err != nil {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, RoleSuperAdmin, globalDomain)
	return err
}

func (s *ServiceImpl) GrantStoreAdmin(actor, storeID string) error {
	subject, domain, err := scoped(actor, storeID)
	if err != nil {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, RoleStoreAdmin, domain)
	return err
}

func (s *ServiceImpl) RevokeStoreAdmin(actor, storeID string) error {
	subject, domain, err := scoped(actor, storeID)
	if err != nil {
		return err
	}
	_, err = s.enforcer.RemoveGroupingPolicy(subject, RoleStoreAdmin, domain)
	return err
}

func (s *ServiceImpl) RevokeStore(storeID string) error {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return ErrInvalidStore
	}
	_, err := s.enforcer.RemoveFilteredGroupingPolicy(2, storeDomain(storeID))
	return err
}

func (s *ServiceImpl) StoresFor(actor string) ([]string, error) {
	subject, err := subjectFor(actor)
	if err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, RoleStoreAdmin)
	if err != nil {
		return nil, err
	}
	stores := make([]string, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		if id, ok := strings.CutPrefix(rule[2], "store:"); ok {
			stores = append(stores, id)
		}
	}
	sort.Strings(stores)
	return stores, nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, storeID, object, action string) {
	if s.auditSvc == nil || storeID == "" {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, storeID, auditdomain.Entry{
		Action:     "authorization.denied",
		Collection: "authorization",
		Changes: map[string]any{
			"object": object,
			"action": action,
		},
	})
}

func subjectFor(actor string) (string, error) {
	actor = strings.ToLower(strings.TrimSpace(actor))
	if actor == "" || !strings.Contains(actor, "@") {
		return "", ErrInvalidActor
	}
	return "user:" + actor, nil
}

func scoped(actor, storeID string) (string, string, error) {
	subject, err := subjectFor(actor)
	if err != nil {
		return "", "", err
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return "", "", ErrInvalidStore
	}
	return subject, storeDomain(storeID), nil
}

func storeDomain(storeID string) string {
	return fmt.Sprintf("store:%s", storeID)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Super admins manage every store and tenant lifecycle.
		{RoleSuperAdmin, "*", "*"},

		// Store admins work inside their own store.
		{RoleStoreAdmin, ObjectRecord, ActionRecordView},
		{RoleStoreAdmin, ObjectRecord, ActionRecordCreate},
		{RoleStoreAdmin, ObjectRecord, ActionRecordUpdate},
		{RoleStoreAdmin, ObjectRecord, ActionRecordDelete},
		{RoleStoreAdmin, ObjectTenant, ActionTenantView},
		{RoleStoreAdmin, ObjectTenant, ActionTenantDomain},
		{RoleStoreAdmin, ObjectWizard, ActionWizardRun},
		{RoleStoreAdmin, ObjectUpload, ActionUploadCreate},
		{RoleStoreAdmin, ObjectAuditLog, ActionAuditLogView},
		{RoleStoreAdmin, ObjectChatbot, ActionChatbotManage},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
