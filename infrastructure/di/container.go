package di

import (
	"net/http"

	"grocerylist/application/cache"
	"grocerylist/application/ports"
	"grocerylist/application/services"
	"grocerylist/infrastructure/config"
	"grocerylist/infrastructure/notify"
	"grocerylist/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	LogLevel zap.AtomicLevel
	Logger   *zap.Logger
	Tracing  *observability.TracerProvider
	Metrics  *Metrics
	Store    ports.RemoteStore
	Sink     *notify.LogSink
	Cache    *cache.QueryCache
	Service  *services.GroceryService
	Handler  http.Handler
	Watcher  *config.Watcher
}
