package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/app"
	"github.com/dev-mohitbeniwal/archive-gateway/config"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	conf := config.GetConfig()

	// Initialize logger
	if err := logger.InitLogger(conf.Log.Level, conf.Log.Dir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	gateway := fx.New(
		app.Module(conf),
		fx.StartTimeout(conf.Server.ShutdownTimeout+fx.DefaultTimeout),
		fx.StopTimeout(conf.Server.ShutdownTimeout),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)
	if err := gateway.Err(); err != nil {
		logger.Fatal("Failed to build gateway", zap.Error(err))
	}

	logger.Info("Gateway configured",
		zap.String("port", conf.Server.Port),
		zap.Int("max", conf.Cache.Max),
		zap.Duration("ttl", conf.Cache.TTL),
		zap.Duration("period", conf.Cache.Period))

	// Run starts every component, blocks until SIGINT or SIGTERM and stops them in reverse order.
	gateway.Run()
	logger.Info("Server exiting")
}
