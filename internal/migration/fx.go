package migration

import (
	"github.com/smallbiznis/storeadmin/pkg/db"
	"github.com/smallbiznis/storeadmin/pkg/docstore/sqlstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate prepares the documents table for the configured dialect.
func Migrate(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
	if cfg.Type != "postgres" {
		log.Info("auto-migrating documents table", zap.String("type", cfg.Type))
		return sqlstore.AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
