package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigDatabaseLogging(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("DB_LOG_LEVEL", "")
	t.Setenv("DB_SLOW_QUERY", "")

	cfg := LoadConfig(config.Config{})
	assert.Equal(t, "storeadmin", cfg.ServiceName)
	assert.Equal(t, "warn", cfg.DBLogLevel)
	assert.Equal(t, 200*time.Millisecond, cfg.DBSlowQuery)

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_SLOW_QUERY", "750")
	cfg = LoadConfig(config.Config{AppName: "shop-admin"})
	assert.Equal(t, "shop-admin", cfg.ServiceName)
	assert.Equal(t, "info", cfg.DBLogLevel)
	assert.Equal(t, 750*time.Millisecond, cfg.DBSlowQuery)

	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("DB_SLOW_QUERY", "1s")
	gormCfg := provideGormLoggerConfig(LoadConfig(config.Config{}))
	assert.Equal(t, gormlogger.Silent, gormCfg.Level)
	assert.Equal(t, time.Second, gormCfg.SlowThreshold)
}
