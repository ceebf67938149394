package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"github.com/TnZzZHlp/ai-forward/internal/cache"
	"github.com/TnZzZHlp/ai-forward/internal/config"
	"github.com/TnZzZHlp/ai-forward/internal/ipban"
	"github.com/TnZzZHlp/ai-forward/internal/proxy"
	"github.com/TnZzZHlp/ai-forward/internal/router"
	"github.com/TnZzZHlp/ai-forward/internal/usage"
)

// Service wrapper types for DI registration.

// RuntimeService wraps the hot-reloadable configuration.
type RuntimeService struct {
	Runtime *config.Runtime
}

// LoggerService wraps the zerolog logger.
type LoggerService struct {
	Logger *zerolog.Logger
}

// BanService wraps the IP ban manager.
type BanService struct {
	Bans *ipban.Manager
}

// CountersService wraps the usage counters.
type CountersService struct {
	Counters *usage.Counters
}

// CacheService wraps the layered exchange cache.
type CacheService struct {
	Exchanges *cache.Layered
}

// ForwarderService wraps the upstream forwarder.
type ForwarderService struct {
	Forwarder *proxy.Forwarder
}

// HandlerService wraps the assembled HTTP routes.
type HandlerService struct {
	Handler http.Handler
}

// ServerService wraps the HTTP server.
type ServerService struct {
	Server *proxy.Server
}

// WatcherService wraps the config file watcher.
type WatcherService struct {
	Watcher *config.Watcher
	cancel  context.CancelFunc
}

// RegisterSingletons registers all services in dependency order.
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewRuntime)
	do.Provide(i, NewLogger)
	do.Provide(i, NewBanManager)
	do.Provide(i, NewCounters)
	do.Provide(i, NewExchangeCache)
	do.Provide(i, NewForwarder)
	do.Provide(i, NewRoutesHandler)
	do.Provide(i, NewHTTPServer)
	do.Provide(i, NewConfigWatcher)
}

// NewRuntime loads the configuration from the resolved path.
func NewRuntime(i do.Injector) (*RuntimeService, error) {
	explicit := do.MustInvokeNamed[string](i, ConfigPathKey)
	path := config.ResolvePath(explicit)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	return &RuntimeService{Runtime: config.NewRuntime(cfg, path)}, nil
}

// NewLogger creates the global logger from configuration.
func NewLogger(i do.Injector) (*LoggerService, error) {
	runtimeSvc := do.MustInvoke[*RuntimeService](i)

	logger, err := proxy.SetupLogger(runtimeSvc.Runtime.Get().Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zerolog.DefaultContextLogger = &logger

	return &LoggerService{Logger: &logger}, nil
}

// NewBanManager creates the IP ban manager with default thresholds.
func NewBanManager(_ do.Injector) (*BanService, error) {
	return &BanService{Bans: ipban.NewManager()}, nil
}

// NewCounters creates the usage counters.
func NewCounters(_ do.Injector) (*CountersService, error) {
	return &CountersService{Counters: usage.NewCounters()}, nil
}

// NewExchangeCache builds the layered cache and warms it from the database
// when one is configured.
func NewExchangeCache(i do.Injector) (*CacheService, error) {
	runtimeSvc := do.MustInvoke[*RuntimeService](i)
	do.MustInvoke[*LoggerService](i)
	cfg := runtimeSvc.Runtime.Get()

	memory, err := cache.NewMemory(cfg.EffectiveCacheSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	var store *cache.Store
	if dsn, ok := cfg.DatabaseOption().Get(); ok {
		store, err = cache.OpenStore(dsn)
		if err != nil {
			_ = memory.Close()
			return nil, fmt.Errorf("failed to open exchange store: %w", err)
		}
	}

	layered := cache.NewLayered(memory, store)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := layered.Warm(ctx, cfg.EffectiveCacheSize()); err != nil {
		_ = layered.Close()
		return nil, fmt.Errorf("failed to warm cache: %w", err)
	}

	return &CacheService{Exchanges: layered}, nil
}

// Shutdown implements do.Shutdowner for cache cleanup.
func (c *CacheService) Shutdown() error {
	if c.Exchanges != nil {
		return c.Exchanges.Close()
	}
	return nil
}

// NewForwarder creates the upstream forwarder around the shared HTTP client.
func NewForwarder(_ do.Injector) (*ForwarderService, error) {
	return &ForwarderService{Forwarder: proxy.NewForwarder(proxy.NewHTTPClient())}, nil
}

// NewRoutesHandler assembles the request pipeline and routing table.
func NewRoutesHandler(i do.Injector) (*HandlerService, error) {
	runtimeSvc := do.MustInvoke[*RuntimeService](i)
	do.MustInvoke[*LoggerService](i)
	banSvc := do.MustInvoke[*BanService](i)
	countersSvc := do.MustInvoke[*CountersService](i)
	cacheSvc := do.MustInvoke[*CacheService](i)
	forwarderSvc := do.MustInvoke[*ForwarderService](i)

	selector := router.NewSelector(countersSvc.Counters)
	handler := proxy.NewHandler(runtimeSvc.Runtime, selector, cacheSvc.Exchanges, forwarderSvc.Forwarder)
	admin := proxy.NewAdmin(runtimeSvc.Runtime, countersSvc.Counters)

	routes := proxy.SetupRoutes(runtimeSvc.Runtime, banSvc.Bans, handler, admin)
	return &HandlerService{Handler: routes}, nil
}

// NewHTTPServer creates the HTTP server on the configured port.
func NewHTTPServer(i do.Injector) (*ServerService, error) {
	runtimeSvc := do.MustInvoke[*RuntimeService](i)
	handlerSvc := do.MustInvoke[*HandlerService](i)
	cfg := runtimeSvc.Runtime.Get()

	server := proxy.NewServer(
		fmt.Sprintf(":%d", cfg.Port),
		handlerSvc.Handler,
		cfg.EnableHTTP2,
	)
	return &ServerService{Server: server}, nil
}

// Shutdown implements do.Shutdowner for graceful server shutdown.
func (s *ServerService) Shutdown() error {
	if s.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Server.Shutdown(ctx)
	}
	return nil
}

// NewConfigWatcher starts watching the config file and swaps the runtime
// snapshot on each successful reload.
func NewConfigWatcher(i do.Injector) (*WatcherService, error) {
	runtimeSvc := do.MustInvoke[*RuntimeService](i)
	do.MustInvoke[*LoggerService](i)
	runtime := runtimeSvc.Runtime

	watcher, err := config.NewWatcher(runtime.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	watcher.OnReload(func(cfg *config.Config) error {
		runtime.Store(cfg)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = watcher.Watch(ctx)
	}()

	return &WatcherService{Watcher: watcher, cancel: cancel}, nil
}

// Shutdown implements do.Shutdowner for watcher cleanup.
func (w *WatcherService) Shutdown() error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.Watcher != nil {
		return w.Watcher.Close()
	}
	return nil
}
