package main

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"whatson/internal/cache"
	"whatson/internal/config"
	domainerrors "whatson/internal/errors"
	appLog "whatson/internal/log"
	"whatson/internal/metrics"
	"whatson/internal/scheduler"
	"whatson/internal/source"
	"whatson/internal/web"
)

const shutdownTimeout = 10 * time.Second

// newContainer registers every provider. Services are built lazily on first
// Invoke.
func newContainer(flags flagConfig) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, flags)
	do.Provide(injector, provideConfig)
	do.Provide(injector, provideMetrics)
	do.Provide(injector, provideStore)
	do.Provide(injector, provideFetcher)
	do.Provide(injector, provideScheduler)
	do.Provide(injector, provideHTTPServer)

	return injector
}

// provideConfig loads the YAML config, applies CLI overrides and configures
// the logger.
func provideConfig(i do.Injector) (*config.Config, error) {
	flags := do.MustInvoke[flagConfig](i)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetFormat(appLog.Format(conf.LogFormat))
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"endpoint", conf.API.Endpoint,
		"api_key_set", conf.API.Key != "",
		"cache_path", conf.Cache.Path,
		"cache_ttl", conf.Cache.TTL.String(),
		"basic_auth", conf.BasicAuth != nil,
	)
	return conf, nil
}

// storeHandle wraps the cache store with shutdown capability.
type storeHandle struct {
	cache.Store
	close func() error
}

// Shutdown implements do.Shutdownable.
func (h *storeHandle) Shutdown() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// provideStore opens Badger at cache.path, or in memory when the path is empty.
func provideStore(i do.Injector) (*storeHandle, error) {
	conf := do.MustInvoke[*config.Config](i)

	db, err := cache.OpenBadger(conf.Cache.Path)
	if err != nil {
		return nil, domainerrors.Internal("open event cache", err)
	}
	if conf.Cache.Path == "" {
		appLog.Info("event cache is in-memory")
	} else {
		appLog.Info("event cache opened", "path", conf.Cache.Path)
	}
	return &storeHandle{Store: db, close: db.Close}, nil
}

func provideMetrics(_ do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

func provideFetcher(i do.Injector) (*source.Fetcher, error) {
	conf := do.MustInvoke[*config.Config](i)
	store := do.MustInvoke[*storeHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	return source.NewFetcher(source.Options{
		Endpoint:  conf.API.Endpoint,
		APIKey:    conf.API.Key,
		CDNBase:   conf.API.CDNBase,
		Transport: source.NewHTTPTransport(conf.API.Timeout, conf.API.RatePerMinute),
		Cache: cache.NewEventCache(store,
			cache.WithKey(conf.Cache.Key),
			cache.WithTTL(conf.Cache.TTL),
		),
		Metrics: m,
	}), nil
}

func provideScheduler(i do.Injector) (*scheduler.Scheduler, error) {
	conf := do.MustInvoke[*config.Config](i)
	fetcher := do.MustInvoke[*source.Fetcher](i)

	return scheduler.New(conf.RefreshCron, conf.Location(), fetcher, conf.API.Timeout*2)
}

// httpServerHandle wraps http.Server with Shutdownable.
type httpServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *httpServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

func provideHTTPServer(i do.Injector) (*httpServerHandle, error) {
	conf := do.MustInvoke[*config.Config](i)
	fetcher := do.MustInvoke[*source.Fetcher](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	srv := web.NewServer(conf, fetcher, web.WithMetrics(m))
	return &httpServerHandle{Server: &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}, nil
}
