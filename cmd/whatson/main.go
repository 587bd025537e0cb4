package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/do/v2"

	"whatson/internal/config"
	"whatson/internal/events"
	appLog "whatson/internal/log"
	"whatson/internal/model"
	"whatson/internal/scheduler"
	"whatson/internal/source"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool

	category string
	tag      string
	search   string
	month    string
}

func main() {
	appLog.Info("whatson starting", "version", "0.1.0")

	// Parse CLI flags.
	flags := parseFlags()

	os.Exit(run(flags))
}

func run(flags flagConfig) int {
	injector := newContainer(flags)
	defer func() {
		logShutdown(injector.Shutdown())
		appLog.Info("whatson exiting")
	}()

	conf, err := do.Invoke[*config.Config](injector)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if flags.once {
		return runOnce(ctx, injector, conf, flags, os.Stdout)
	}
	return serve(ctx, injector, conf)
}

// logShutdown logs a failed container shutdown and reports whether it was
// clean.
func logShutdown(report *do.ShutdownReport) bool {
	if report == nil || report.Succeed {
		return true
	}
	appLog.Error("shutdown error", report)
	return false
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/whatson/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch, print the selected events and exit")
	flag.StringVar(&cfg.category, "category", events.CategoryAll, "Category: all, panthers, hospitality (with -once)")
	flag.StringVar(&cfg.tag, "tag", "", "Secondary category tag, used with -category=all (with -once)")
	flag.StringVar(&cfg.search, "search", "", "Case-insensitive title search (with -once)")
	flag.StringVar(&cfg.month, "month", events.MonthAll, `Month label such as "March 2024" (with -once)`)

	flag.Parse()

	return cfg
}

// serve runs the HTTP API and the refresh schedule until ctx is canceled.
func serve(ctx context.Context, injector do.Injector, conf *config.Config) int {
	sched, err := do.Invoke[*scheduler.Scheduler](injector)
	if err != nil {
		appLog.Error("failed to create refresh scheduler", err, "refresh", conf.RefreshCron)
		return 1
	}
	srv, err := do.Invoke[*httpServerHandle](injector)
	if err != nil {
		appLog.Error("failed to create HTTP server", err)
		return 1
	}

	sched.Start()
	// Warm the cache so the first request does not wait on the API.
	go sched.RunNow(ctx)

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return 0
	case err, ok := <-errCh:
		if ok && err != nil {
			appLog.Error("HTTP server failed", err)
			return 1
		}
		return 0
	}
}

// runOnce prints one line per selected grouped event.
func runOnce(ctx context.Context, injector do.Injector, conf *config.Config, flags flagConfig, w io.Writer) int {
	fetcher, err := do.Invoke[*source.Fetcher](injector)
	if err != nil {
		appLog.Error("failed to create fetcher", err)
		return 1
	}

	evs, err := fetcher.GetEvents(ctx)
	if err != nil {
		appLog.Error("failed to load events", err)
		return 1
	}

	loc := conf.Location()
	crit := events.Criteria{
		Category:   flags.category,
		Tag:        flags.tag,
		SearchTerm: flags.search,
		Month:      flags.month,
		Location:   loc,
	}
	selected := events.FilterAt(events.GroupIn(evs, loc), crit, time.Now())

	printEvents(w, selected, loc)
	appLog.Info("once run completed", "fetched", len(evs), "selected", len(selected))
	return 0
}

func printEvents(w io.Writer, selected []model.GroupedEvent, loc *time.Location) {
	if len(selected) == 0 {
		fmt.Fprintln(w, "No events found matching your criteria.")
		return
	}
	for _, g := range selected {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			events.FormatDates(g.Occurrences(), loc),
			events.FormatTime(g.Event, loc),
			g.Title,
			strings.Join(g.Category, ", "),
		)
	}
}
