//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"grocerylist/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideTracing,
	ProvideCloudWatchClient,
	ProvideMetrics,
	ProvideIDGenerator,
	ProvideRemoteStore,
	ProvideErrorSink,
	ProvideQueryCache,
	ProvideDomainConfig,
	ProvideMergePolicy,
	ProvideItemValidator,
	ProvideGroceryService,
	ProvideErrorHandler,
	ProvideGroceryHandler,
	ProvideRouter,
	ProvideConfigWatcher,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
