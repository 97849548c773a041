// Package app wires the feeds, the change ledger and the notifier together.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/communitybot/feedwatch/internal/config"
	"github.com/communitybot/feedwatch/internal/database"
	"github.com/communitybot/feedwatch/internal/details"
	"github.com/communitybot/feedwatch/internal/feed"
	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/internal/format"
	"github.com/communitybot/feedwatch/internal/ledger"
	"github.com/communitybot/feedwatch/internal/metrics"
	"github.com/communitybot/feedwatch/internal/notify"
	"github.com/communitybot/feedwatch/internal/scheduler"
	"github.com/communitybot/feedwatch/pkg/logger"
	"github.com/communitybot/feedwatch/pkg/models"
)

// Notifier broadcasts a text message to chats.
type Notifier interface {
	Broadcast(ctx context.Context, chatIDs []int64, text string) error
}

type App struct {
	Events   *feed.Feed[models.Event]
	Bounties *feed.Feed[models.Bounty]
	Ledger   *ledger.Ledger
	Details  *details.Client

	cfg      *config.Config
	loc      *time.Location
	notifier Notifier
	metrics  *metrics.Metrics
	store    database.Store
	now      func() time.Time
}

// Deps are the collaborators New builds from configuration. Tests supply
// their own.
type Deps struct {
	Fetcher  fetch.Fetcher
	Store    ledger.Store
	Notifier Notifier
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// New builds the application from cfg, opening the configured store and, when
// a bot token and chats are configured, the notifier.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening ledger store: %w", err)
	}

	deps := Deps{
		Fetcher: fetch.New(fetch.Options{
			HTTPTimeout: cfg.HTTP.Timeout,
			UserAgent:   cfg.HTTP.UserAgent,
			Browser: fetch.BrowserOptions{
				Disabled:          cfg.Browser.Disabled,
				ExecPath:          cfg.Browser.ExecPath,
				NavigationTimeout: cfg.Browser.NavigationTimeout,
				NavigationRetries: *cfg.Browser.NavigationRetries,
				SettleTimeout:     cfg.Browser.SettleTimeout,
				MinTextLength:     cfg.Browser.MinTextLength,
			},
			Location: loc,
		}),
		Store:   store,
		Metrics: m,
	}
	if cfg.Notify.Enabled() {
		deps.Notifier = notify.NewClient(cfg.Notify.BotToken, cfg.Notify.APIURL, cfg.Notify.RatePerSecond)
	} else {
		logger.Info("notifications disabled", "reason", "bot_token or chat_ids not configured")
	}

	a, err := NewWith(cfg, deps)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.store = store
	return a, nil
}

func NewWith(cfg *config.Config, deps Deps) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	events, err := feed.NewEvents(cfg.Events, loc, deps.Fetcher, deps.Metrics, deps.Now)
	if err != nil {
		return nil, err
	}
	bounties, err := feed.NewBounties(cfg.Bounties, deps.Fetcher, deps.Metrics, deps.Now)
	if err != nil {
		return nil, err
	}

	a := &App{
		Events:   events,
		Bounties: bounties,
		Ledger:   ledger.New(deps.Store).WithClock(deps.Now),
		Details:  details.New(deps.Fetcher),
		cfg:      cfg,
		loc:      loc,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		now:      deps.Now,
	}
	return a, nil
}

func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// CheckNotifier verifies the notifier's credentials when the notifier supports
// it. It returns nil when notifications are disabled.
func (a *App) CheckNotifier(ctx context.Context) error {
	c, ok := a.notifier.(interface{ TestConnection(context.Context) error })
	if !ok {
		return nil
	}
	return c.TestConnection(ctx)
}

// CheckBounties refreshes the bounties feed and announces bounties that were
// not seen before. Fallback snapshots are never diffed. Bounties are marked
// seen before they are announced, so a failed delivery is not retried.
func (a *App) CheckBounties(ctx context.Context) error {
	if _, err := a.Bounties.Refresh(ctx); err != nil {
		return err
	}
	snap := a.Bounties.Snapshot()
	if snap.Fallback {
		logger.Info("bounties unavailable, skipping change detection")
		return nil
	}

	active := feed.ActiveBounties(snap.Records, a.now())
	fresh, diffErr := a.Ledger.DiffNew(ctx, active)
	if diffErr != nil {
		logger.Error("change detection incomplete", "error", diffErr, "marked", len(fresh))
	}
	logger.Info("bounty check", "active", len(active), "new", len(fresh))

	err := a.announce(ctx, "bounties", len(fresh), func() string { return format.NewBounties(fresh) })
	return errors.Join(diffErr, err)
}

// CheckEvents refreshes the events feed and, when configured, posts the
// upcoming events.
func (a *App) CheckEvents(ctx context.Context) error {
	if _, err := a.Events.Refresh(ctx); err != nil {
		return err
	}
	if !a.cfg.Notify.AnnounceEvents || a.Events.Snapshot().Fallback {
		return nil
	}
	upcoming := feed.UpcomingEvents(a.Events.Snapshot().Records, a.now())
	if len(upcoming) > a.cfg.Events.Limit && a.cfg.Events.Limit > 0 {
		upcoming = upcoming[:a.cfg.Events.Limit]
	}
	return a.announce(ctx, "events", len(upcoming), func() string {
		return format.Events(upcoming, a.Events.Source(), a.loc)
	})
}

func (a *App) announce(ctx context.Context, name string, n int, text func() string) error {
	if n == 0 || a.notifier == nil {
		return nil
	}
	if err := a.notifier.Broadcast(ctx, a.cfg.Notify.ChatIDs, text()); err != nil {
		a.metrics.NotifyFailed()
		return fmt.Errorf("announcing %s: %w", name, err)
	}
	a.metrics.Announced(name, n)
	return nil
}

// Jobs are the periodic checks for the scheduler.
func (a *App) Jobs(runAtStart bool) []scheduler.Job {
	return []scheduler.Job{
		{Name: "bounties", Interval: a.cfg.Bounties.RefreshInterval, RunAtStart: runAtStart, Run: a.CheckBounties},
		{Name: "events", Interval: a.cfg.Events.RefreshInterval, RunAtStart: runAtStart, Run: a.CheckEvents},
	}
}

// EventsText answers a "current events" request from the snapshot.
func (a *App) EventsText() string {
	return format.Events(a.Events.ActiveOrUpcoming(a.cfg.Events.Limit), a.Events.Source(), a.loc)
}

// BountiesText answers a "current bounties" request from the snapshot.
func (a *App) BountiesText() string {
	return format.Bounties(a.Bounties.ActiveOrUpcoming(a.cfg.Bounties.Limit), a.Bounties.Source())
}

// EventDetails fetches an event page. When the page cannot be read the
// snapshot record for url, if any, is used instead.
func (a *App) EventDetails(ctx context.Context, url string) (models.EventDetails, error) {
	d, err := a.Details.Get(ctx, url)
	if err == nil {
		return d, nil
	}
	if ev, ok := a.Events.Lookup(url); ok {
		logger.Warn("event page unavailable, using snapshot", "url", url, "error", err)
		at := ev.StartsAt.In(a.loc)
		return models.EventDetails{
			Title:       ev.Title,
			Description: ev.Description,
			Location:    ev.Location,
			Date:        at.Format("January 2, 2006"),
			Time:        at.Format("3:04 PM"),
			URL:         ev.Link,
		}, nil
	}
	return models.EventDetails{}, err
}

// Status is the status query for both feeds.
type Status struct {
	Events   models.Status `json:"events"`
	Bounties models.Status `json:"bounties"`
}

func (a *App) Status() Status {
	return Status{Events: a.Events.Status(), Bounties: a.Bounties.Status()}
}

func (a *App) StatusText() string {
	st := a.Status()
	return format.Status(st.Events, st.Bounties, a.loc)
}

func (a *App) Location() *time.Location { return a.loc }
