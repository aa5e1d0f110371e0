// app/app.go

// Package app wires the gateway components and their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/adapter"
	"github.com/dev-mohitbeniwal/archive-gateway/archive"
	"github.com/dev-mohitbeniwal/archive-gateway/audit"
	"github.com/dev-mohitbeniwal/archive-gateway/cache"
	"github.com/dev-mohitbeniwal/archive-gateway/config"
	"github.com/dev-mohitbeniwal/archive-gateway/controller"
	"github.com/dev-mohitbeniwal/archive-gateway/db"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
	"github.com/dev-mohitbeniwal/archive-gateway/metrics"
	"github.com/dev-mohitbeniwal/archive-gateway/router"
	"github.com/dev-mohitbeniwal/archive-gateway/util"
)

// Module returns the gateway as an fx module for conf.
func Module(conf *config.Configuration) fx.Option {
	return fx.Module("gateway",
		fx.Supply(conf),
		fx.Provide(
			connectRedis,
			newNameCache,
			newResolver,
			newManager,
			metrics.New,
			util.NewEventBus,
			newAuditService,
			newCache,
			newControllers,
			newRouter,
			newServer,
			newMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// redisConn records whether the shared Redis client is connected.
type redisConn struct {
	enabled bool
}

func connectRedis(conf *config.Configuration) (redisConn, error) {
	if err := db.InitRedis(conf.Redis); err != nil {
		return redisConn{}, err
	}
	return redisConn{enabled: db.Enabled()}, nil
}

func newNameCache(rc redisConn) archive.NameCache {
	if !rc.enabled {
		return nil
	}
	return util.NewCacheService()
}

func newResolver(conf *config.Configuration, names archive.NameCache) *archive.Resolver {
	opts := []archive.ResolverOption{}
	if names != nil {
		opts = append(opts, archive.WithNameCache(names))
	}
	return archive.NewResolver(conf.Archive.NameCache, conf.Archive.NameTTL, opts...)
}

func newManager(conf *config.Configuration, resolver *archive.Resolver) *archive.Manager {
	return archive.NewManager(archive.Config{
		Dir:         conf.Archive.Dir,
		Peers:       conf.Archive.Peers,
		SyncRetry:   conf.Archive.SyncRetry,
		Refresh:     conf.Archive.Refresh,
		HTTPTimeout: conf.Archive.HTTPTimeout,
	}, resolver)
}

// newAuditService returns nil when no Elasticsearch URL is configured.
func newAuditService(conf *config.Configuration, bus *util.EventBus) (audit.Service, error) {
	if conf.Elasticsearch.URL == "" {
		logger.Info("Elasticsearch not configured, archive events are not audited")
		return nil, nil
	}
	repo, err := audit.NewElasticsearchRepository(conf.Elasticsearch.URL, conf.Elasticsearch.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit repository: %w", err)
	}
	svc := audit.NewService(repo)
	audit.Subscribe(bus, svc)
	return svc, nil
}

func newCache(conf *config.Configuration, manager *archive.Manager, bus *util.EventBus, m *metrics.Metrics) *cache.Cache {
	return cache.New(manager, cache.Config{
		Max:             conf.Cache.Max,
		TTL:             conf.Cache.TTL,
		Period:          conf.Cache.Period,
		PopulateTimeout: conf.Cache.PopulateTimeout,
	}, cache.WithPublisher(bus), cache.WithRecorder(m))
}

func newControllers(conf *config.Configuration, c *cache.Cache, manager *archive.Manager, events audit.Service) (*controller.Controllers, error) {
	welcome, err := controller.LoadWelcomePage(conf.Gateway.WelcomeFile)
	if err != nil {
		return nil, err
	}
	return &controller.Controllers{
		Gateway: controller.NewGatewayController(c, adapter.NewFactory(conf.Archive.FetchWait), welcome, conf.Gateway.CacheFullStatus),
		Admin:   controller.NewAdminController(c, manager, events),
	}, nil
}

// newRouter depends on redisConn so the rate limiter sees the connected client.
func newRouter(conf *config.Configuration, controllers *controller.Controllers, m *metrics.Metrics, _ redisConn) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	return router.SetupRouter(controllers, m, conf.RateLimit.Requests, conf.RateLimit.Per)
}

func newServer(conf *config.Configuration, engine *gin.Engine) *Server {
	return NewServer(":"+conf.Server.Port, engine)
}

// newMetricsServer returns nil when metrics.addr is empty.
func newMetricsServer(conf *config.Configuration, m *metrics.Metrics) *metrics.Server {
	if conf.Metrics.Addr == "" {
		return nil
	}
	return metrics.NewServer(conf.Metrics.Addr, m)
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Redis     redisConn
	Bus       *util.EventBus
	Manager   *archive.Manager
	Metrics   *metrics.Server
	Server    *Server
	Cache     *cache.Cache
}

// registerLifecycle appends hooks in start order. fx stops them in reverse,
// so the sweeper stops first, then the HTTP server, then the manager.
func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			db.CloseRedis()
			return nil
		},
	})

	busCtx, stopBus := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Bus.Start(busCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			defer stopBus()
			return p.Bus.Drain(ctx)
		},
	})

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("Closing archive manager")
			return p.Manager.Close()
		},
	})

	if p.Metrics != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: p.Metrics.Start,
			OnStop:  p.Metrics.Stop,
		})
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: p.Server.Start,
		OnStop:  p.Server.Stop,
	})

	warmCtx, stopWarm := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Cache.Start()
			go warm(warmCtx, p.Cache, p.Manager)
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("Stopping archive cache")
			stopWarm()
			p.Cache.Stop()
			return nil
		},
	})
}

// warm reopens archives persisted by an earlier run.
func warm(ctx context.Context, c cache.Accessor, m *archive.Manager) {
	keys, err := m.StoredKeys()
	if err != nil {
		logger.Warn("Failed to list stored archives", zap.Error(err))
		return
	}
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.Access(ctx, key); err != nil {
			logger.Warn("Failed to load stored archive", zap.String("key", key), zap.Error(err))
			continue
		}
		logger.Debug("Loaded stored archive", zap.String("key", key))
	}
}
