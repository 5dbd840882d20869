package di

import (
	"context"
	"errors"
	"net/http"

	"grocerylist/application/cache"
	"grocerylist/application/ports"
	"grocerylist/application/services"
	domainconfig "grocerylist/domain/config"
	"grocerylist/domain/core/validators"
	"grocerylist/domain/core/valueobjects"
	domainservices "grocerylist/domain/services"
	"grocerylist/infrastructure/config"
	"grocerylist/infrastructure/notify"
	"grocerylist/infrastructure/remote"
	"grocerylist/interfaces/http/rest"
	"grocerylist/interfaces/http/rest/handlers"
	"grocerylist/interfaces/http/rest/middleware"
	pkgerrors "grocerylist/pkg/errors"
	"grocerylist/pkg/observability"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "grocerylist"

// Metrics bundles the recorders handed to each layer. Every field may be nil.
type Metrics struct {
	Cache   ports.CacheMetrics
	Remote  ports.RemoteMetrics
	HTTP    middleware.HTTPMetrics
	Handler http.Handler
}

// ProvideLogLevel parses the configured level, defaulting to info
func ProvideLogLevel(cfg *config.Config) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		level.SetLevel(l)
	}
	return level
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("variant", cfg.Variant)), nil
}

// ProvideTracing installs the OTLP exporter when tracing is enabled
func ProvideTracing(cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing {
		return nil, func() {}, nil
	}

	tp, err := observability.InitTracing(observability.TracingConfig{
		ServiceName: MetricsNamespace,
		Environment: cfg.Variant,
		Endpoint:    cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideCloudWatchClient creates a CloudWatch client when metrics go there
func ProvideCloudWatchClient(ctx context.Context, cfg *config.Config) (*awscloudwatch.Client, error) {
	if !cfg.EnableMetrics || cfg.MetricsBackend != config.MetricsCloudWatch {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	return awscloudwatch.NewFromConfig(awsCfg), nil
}

// ProvideMetrics selects the metrics backend
func ProvideMetrics(cfg *config.Config, client *awscloudwatch.Client, logger *zap.Logger) *Metrics {
	if !cfg.EnableMetrics {
		return &Metrics{}
	}

	if cfg.MetricsBackend == config.MetricsCloudWatch {
		var api observability.PutMetricDataAPI
		if client != nil {
			api = client
		}
		cw := observability.NewCloudWatchMetrics(MetricsNamespace, api, logger)
		return &Metrics{Cache: cw, Remote: cw}
	}

	collector := observability.NewCollector(MetricsNamespace)
	return &Metrics{
		Cache:   collector,
		Remote:  collector,
		HTTP:    collector,
		Handler: collector.Handler(),
	}
}

// ProvideIDGenerator selects the id scheme
func ProvideIDGenerator(cfg *config.Config) valueobjects.IDGenerator {
	return valueobjects.NewIDGenerator(cfg.IDStrategy)
}

// ProvideRemoteStore creates the store client, behind a circuit breaker when enabled
func ProvideRemoteStore(cfg *config.Config, ids valueobjects.IDGenerator, metrics *Metrics, logger *zap.Logger) ports.RemoteStore {
	opts := []remote.Option{
		remote.WithTimeout(cfg.RemoteTimeout),
		remote.WithIDGenerator(ids),
	}
	if metrics.Remote != nil {
		opts = append(opts, remote.WithMetrics(metrics.Remote))
	}
	client := remote.NewClient(cfg.APIBaseURL, logger.Named("remote"), opts...)

	if !cfg.EnableCircuitBreaker {
		return client
	}
	return remote.NewBreakingStore(client, remote.DefaultCircuitBreakerConfig("grocery-store"), logger.Named("breaker"))
}

// ProvideErrorSink creates the notification sink
func ProvideErrorSink(logger *zap.Logger) *notify.LogSink {
	return notify.NewLogSink(logger.Named("notify"), notify.DefaultCapacity)
}

// ProvideQueryCache creates the cache and stops its collector on cleanup
func ProvideQueryCache(cfg *config.Config, sink *notify.LogSink, metrics *Metrics, logger *zap.Logger) (*cache.QueryCache, func()) {
	opts := cache.DefaultOptions()
	opts.ReadRetryDelay = cfg.ReadRetryDelay
	opts.StaleAfter = cfg.CacheStaleAfter
	opts.GCAfter = cfg.CacheGCAfter

	qc := cache.NewQueryCache(sink, metrics.Cache, logger.Named("cache"), opts)
	return qc, qc.Close
}

// ProvideDomainConfig returns the domain limits
func ProvideDomainConfig() *domainconfig.DomainConfig {
	return domainconfig.DefaultDomainConfig()
}

// ProvideMergePolicy creates the merge policy
func ProvideMergePolicy(dc *domainconfig.DomainConfig) *domainservices.MergePolicy {
	return domainservices.NewMergePolicy(dc)
}

// ProvideItemValidator creates the form validator
func ProvideItemValidator(dc *domainconfig.DomainConfig) *validators.ItemValidator {
	return validators.NewItemValidator(dc)
}

// ProvideGroceryService creates the grocery service
func ProvideGroceryService(
	store ports.RemoteStore,
	queryCache *cache.QueryCache,
	policy *domainservices.MergePolicy,
	validator *validators.ItemValidator,
	ids valueobjects.IDGenerator,
	metrics *Metrics,
	logger *zap.Logger,
) *services.GroceryService {
	return services.NewGroceryService(store, queryCache, policy, validator, ids, metrics.Cache, logger.Named("service"))
}

// ProvideErrorHandler creates the HTTP error handler; details are exposed outside production
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, !cfg.IsProduction())
}

// ProvideGroceryHandler creates the grocery HTTP handler
func ProvideGroceryHandler(
	service *services.GroceryService,
	sink *notify.LogSink,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *handlers.GroceryHandler {
	return handlers.NewGroceryHandler(service, sink, errorHandler, logger)
}

// ProvideRouter builds the HTTP handler
func ProvideRouter(
	cfg *config.Config,
	grocery *handlers.GroceryHandler,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *Metrics,
	store ports.RemoteStore,
	logger *zap.Logger,
) http.Handler {
	opts := rest.Options{
		EnableCORS:     cfg.EnableCORS,
		MetricsHandler: metrics.Handler,
		HTTPMetrics:    metrics.HTTP,
		Ready:          readiness(store),
	}
	if cfg.EnableTracing {
		opts.TracingService = MetricsNamespace
	}
	return rest.NewRouter(grocery, errorHandler, opts, logger.Named("http")).Setup()
}

// ProvideConfigWatcher hot reloads the log level from the config file
func ProvideConfigWatcher(cfg *config.Config, level zap.AtomicLevel, logger *zap.Logger) (*config.Watcher, func(), error) {
	watcher, err := config.NewWatcher(cfg, logger.Named("config"))
	if err != nil {
		return nil, nil, err
	}
	watcher.OnChange(config.LevelUpdater(level, logger))
	return watcher, watcher.Stop, nil
}

func readiness(store ports.RemoteStore) func(ctx context.Context) error {
	breaker, ok := store.(*remote.BreakingStore)
	if !ok {
		return nil
	}
	return func(ctx context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return errors.New("grocery store circuit is open")
		}
		return nil
	}
}
