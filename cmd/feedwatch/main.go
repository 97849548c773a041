package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/communitybot/feedwatch/internal/app"
	"github.com/communitybot/feedwatch/internal/config"
	"github.com/communitybot/feedwatch/internal/format"
	"github.com/communitybot/feedwatch/internal/metrics"
	"github.com/communitybot/feedwatch/internal/scheduler"
	"github.com/communitybot/feedwatch/internal/tui"
	"github.com/communitybot/feedwatch/pkg/logger"
)

const usage = `Usage: feedwatch COMMAND [OPTIONS]

Commands:
  serve     run the scheduled checks and the metrics endpoint
  once      refresh both feeds once and print them
  tui       browse the feeds in the terminal
  status    refresh both feeds and print their status
  seen      list bounties already announced
  details   print the details of one event page
  init      write the default configuration file (-force to replace it)

Every command accepts -config PATH.`

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "Path to the configuration file")

	var err error
	switch cmd {
	case "serve":
		noInitial := fs.Bool("no-initial", false, "Wait one interval before the first checks")
		fs.Parse(os.Args[2:])
		err = withApp(*configPath, func(ctx context.Context, a *app.App, cfg *config.Config, m *metrics.Metrics) error {
			return serve(ctx, a, cfg, m, !*noInitial)
		})

	case "once":
		announce := fs.Bool("announce", false, "Run the checks, announcing new records")
		fs.Parse(os.Args[2:])
		err = withApp(*configPath, func(ctx context.Context, a *app.App, _ *config.Config, _ *metrics.Metrics) error {
			return once(ctx, a, *announce)
		})

	case "tui":
		fs.Parse(os.Args[2:])
		err = withApp(*configPath, func(ctx context.Context, a *app.App, _ *config.Config, _ *metrics.Metrics) error {
			go a.Events.Refresh(ctx)
			go a.Bounties.Refresh(ctx)
			_, err := tea.NewProgram(tui.New(a), tea.WithAltScreen()).Run()
			return err
		})

	case "status":
		fs.Parse(os.Args[2:])
		err = withApp(*configPath, func(ctx context.Context, a *app.App, _ *config.Config, _ *metrics.Metrics) error {
			refreshAll(ctx, a)
			fmt.Println(headerStyle.Render("feedwatch status"))
			fmt.Println(a.StatusText())
			return nil
		})

	case "seen":
		limit := fs.Int("n", 20, "Number of entries to show (0: all)")
		fs.Parse(os.Args[2:])
		err = withApp(*configPath, func(ctx context.Context, a *app.App, _ *config.Config, _ *metrics.Metrics) error {
			seen, err := a.Ledger.Seen(ctx, *limit)
			if err != nil {
				return err
			}
			for _, s := range seen {
				fmt.Printf("%s  %s  %s\n", format.LastFetch(s.SeenAt, a.Location()), s.ID, s.Title)
			}
			return nil
		})

	case "details":
		url := fs.String("url", "", "Event page URL")
		fs.Parse(os.Args[2:])
		if *url == "" {
			fmt.Println("Usage: feedwatch details -url <event url>")
			os.Exit(1)
		}
		err = withApp(*configPath, func(ctx context.Context, a *app.App, _ *config.Config, _ *metrics.Metrics) error {
			d, err := a.EventDetails(ctx, *url)
			if err != nil {
				logger.Warn("event details unavailable", "url", *url, "error", err)
			}
			fmt.Println(format.EventDetails(d))
			return nil
		})

	case "init":
		force := fs.Bool("force", false, "Replace an existing configuration file")
		fs.Parse(os.Args[2:])
		if err = config.Save(config.Default(), *configPath, *force); err == nil {
			fmt.Printf("Wrote default configuration to %s\n", *configPath)
		}

	default:
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// withApp loads configuration and builds the application. Only errors here
// are fatal; feed failures degrade to fallback snapshots.
func withApp(path string, run func(context.Context, *app.App, *config.Config, *metrics.Metrics) error) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := app.New(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer a.Close()

	return run(ctx, a, cfg, m)
}

// loadConfig falls back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no config file, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

func serve(ctx context.Context, a *app.App, cfg *config.Config, m *metrics.Metrics, runAtStart bool) error {
	var srv *metrics.Server
	if cfg.Metrics.Listen != "" {
		srv = metrics.NewServer(cfg.Metrics.Listen, m, func() any { return a.Status() })
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := a.CheckNotifier(ctx); err != nil {
		logger.Error("notifier check failed, announcements will not be delivered", "error", err)
	}

	sched := scheduler.New(a.Jobs(runAtStart)...)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	logger.Info("feedwatch started", "bounties_every", cfg.Bounties.RefreshInterval, "events_every", cfg.Events.RefreshInterval)

	<-ctx.Done()
	logger.Info("shutting down")
	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler stopped with error", "error", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return nil
}

func once(ctx context.Context, a *app.App, announce bool) error {
	if announce {
		return errors.Join(a.CheckBounties(ctx), a.CheckEvents(ctx))
	}
	refreshAll(ctx, a)
	fmt.Println(a.EventsText())
	fmt.Println()
	fmt.Println(a.BountiesText())
	return nil
}

// refreshAll refreshes both feeds concurrently. Failures are logged by the
// feeds and leave fallback snapshots in place.
func refreshAll(ctx context.Context, a *app.App) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Events.Refresh(ctx)
	}()
	a.Bounties.Refresh(ctx)
	<-done
}
