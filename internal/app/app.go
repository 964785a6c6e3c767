package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orders/internal/cache"
	"github.com/Additional-Code/orders/internal/config"
	"github.com/Additional-Code/orders/internal/database"
	"github.com/Additional-Code/orders/internal/logger"
	"github.com/Additional-Code/orders/internal/messaging"
	"github.com/Additional-Code/orders/internal/migration"
	"github.com/Additional-Code/orders/internal/observability"
	repositoryorder "github.com/Additional-Code/orders/internal/repository/order"
	"github.com/Additional-Code/orders/internal/seeder"
	grpcserver "github.com/Additional-Code/orders/internal/server/grpc"
	httpserver "github.com/Additional-Code/orders/internal/server/http"
	serviceorder "github.com/Additional-Code/orders/internal/service/order"
	transporthttp "github.com/Additional-Code/orders/internal/transport/http"
	"github.com/Additional-Code/orders/internal/worker"
	workerorder "github.com/Additional-Code/orders/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	database.Module,
	cache.Module,
	messaging.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// Migrations provides the migrator and, when DB_AUTO_MIGRATE is set, applies
// pending migrations before any server starts accepting traffic.
var Migrations = fx.Module("migrations",
	migration.Module,
	fx.Invoke(AutoMigrate),
)

// API wires the HTTP and gRPC transports on top of the core modules.
var API = fx.Options(
	Core,
	Migrations,
	httpserver.Module,
	transporthttp.Module,
	grpcserver.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Tools backs one-shot CLI commands that need the service and database but no servers.
var Tools = fx.Options(
	Core,
	migration.Module,
	seeder.Module,
)

// Module is the default application wiring.
var Module = API

// AutoMigrate registers a start hook applying pending migrations when enabled.
func AutoMigrate(lc fx.Lifecycle, cfg config.Config, mig *migration.Migrator, logger *zap.Logger) {
	if !cfg.Database.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("applying migrations on start")
			return mig.Up(ctx)
		},
	})
}
