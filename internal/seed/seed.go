// Package seed bootstraps a fresh deployment: configured super admins and the default store.
package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/storeadmin/internal/authorization"
	"github.com/smallbiznis/storeadmin/internal/config"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultStoreName = "Main Store"

var Module = fx.Module("seed",
	fx.Invoke(Register),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Tenants   tenantdomain.Service
	Authz     authorization.Service
	Log       *zap.Logger
}

func Register(p Params) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return EnsureDefaults(ctx, p.Config, p.Tenants, p.Authz, p.Log)
		},
	})
}

// EnsureDefaults grants every configured super admin and creates the default store when it does not exist yet.
// It is safe to run on every start.
func EnsureDefaults(ctx context.Context, cfg config.Config, tenants tenantdomain.Service, authz authorization.Service, log *zap.Logger) error {
	if tenants == nil || authz == nil {
		return errors.New("seed requires tenant and authorization services")
	}
	log = log.Named("seed")

	for _, email := range cfg.SuperAdmins {
		if err := authz.GrantSuperAdmin(email); err != nil {
			return err
		}
	}

	storeID := strings.TrimSpace(cfg.DefaultStoreID)
	if storeID == "" {
		return nil
	}
	_, err := tenants.Get(ctx, storeID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, tenantdomain.ErrTenantNotFound) {
		return err
	}

	var creator string
	if len(cfg.SuperAdmins) > 0 {
		creator = cfg.SuperAdmins[0]
	}
	_, _, err = tenants.Create(tenantctx.WithActor(ctx, creator), tenantdomain.CreateRequest{
		Name:    defaultStoreName,
		StoreID: storeID,
		Admins:  cfg.SuperAdmins,
	})
	if errors.Is(err, tenantdomain.ErrTenantExists) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("default store created", zap.String("store_id", storeID))
	return nil
}
