// Package datastore wires the process-wide document store.
package datastore

import (
	"context"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storeadmin/internal/observability/metrics"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/docstore/redisnotify"
	"github.com/smallbiznis/storeadmin/pkg/docstore/sqlstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("datastore",
	fx.Provide(
		New,
		func(s *docstore.Store) docstore.Client { return s },
	),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Redis     *redis.Client            `optional:"true"`
	Metrics   *metrics.DocstoreMetrics `optional:"true"`
}

// New builds the store on the SQL backend. With redis configured, changes fan out to listeners on other replicas.
func New(p Params) (*docstore.Store, error) {
	opts := []docstore.Option{
		docstore.WithLogger(p.Log),
		docstore.WithIDGenerator(func() string { return p.GenID.Generate().String() }),
	}
	if p.Metrics != nil {
		opts = append(opts, docstore.WithObserver(p.Metrics))
	}
	if p.Redis != nil {
		opts = append(opts, docstore.WithNotifier(redisnotify.New(p.Redis, redisnotify.DefaultChannel, p.Log)))
	}

	store, err := docstore.New(sqlstore.NewBackend(p.DB), opts...)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}
