package feed

import (
	"fmt"
	"slices"
	"time"

	"github.com/communitybot/feedwatch/internal/config"
	"github.com/communitybot/feedwatch/internal/extract"
	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/internal/metrics"
	"github.com/communitybot/feedwatch/pkg/models"
)

const (
	EventsFallbackTitle   = "Events temporarily unavailable"
	BountiesFallbackTitle = "Bounties temporarily unavailable"
	fallbackSource        = "Fallback"
)

func EventFallback(src models.Source, now time.Time) []models.Event {
	return []models.Event{{
		Title:       EventsFallbackTitle,
		Link:        src.URL,
		StartsAt:    now.Add(24 * time.Hour),
		Location:    "Check back later",
		Source:      fallbackSource,
		Description: fmt.Sprintf("Unable to load events right now. See %s for the latest schedule.", src.URL),
	}}
}

func BountyFallback(src models.Source, now time.Time) []models.Bounty {
	return []models.Bounty{{
		Title:       BountiesFallbackTitle,
		Link:        src.URL,
		Reward:      models.DeadlineTBD,
		Deadline:    models.DeadlineTBD,
		Source:      fallbackSource,
		Description: fmt.Sprintf("Unable to load bounties right now. See %s for open bounties.", src.URL),
	}}
}

// UpcomingEvents keeps events starting at or after now, earliest first.
func UpcomingEvents(events []models.Event, now time.Time) []models.Event {
	var out []models.Event
	for _, ev := range events {
		if !ev.StartsAt.Before(now) {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Event) int {
		return a.StartsAt.Compare(b.StartsAt)
	})
	return out
}

// ActiveBounties keeps bounties whose deadline has not passed, in page order.
func ActiveBounties(bounties []models.Bounty, now time.Time) []models.Bounty {
	var out []models.Bounty
	for _, b := range bounties {
		if !b.Expired(now) {
			out = append(out, b)
		}
	}
	return out
}

func EventPipeline(cfg config.FeedConfig, loc *time.Location) (Pipeline[models.Event], error) {
	details, err := extract.CompilePatterns(cfg.DetailLinkPatterns)
	if err != nil {
		return Pipeline[models.Event]{}, err
	}
	src := models.Source{Label: cfg.Label, URL: cfg.URL}
	return Pipeline[models.Event]{
		Locator:   extract.EventLocator(cfg.Anchor),
		Extractor: extract.NewEventExtractor(src, loc, cfg.Locations, cfg.DefaultLocation, details),
		Key:       extract.EventKey,
		Link:      func(ev models.Event) string { return ev.Link },
		Fallback:  EventFallback,
		Active:    UpcomingEvents,
	}, nil
}

func BountyPipeline(cfg config.FeedConfig) (Pipeline[models.Bounty], error) {
	details, err := extract.CompilePatterns(cfg.DetailLinkPatterns)
	if err != nil {
		return Pipeline[models.Bounty]{}, err
	}
	src := models.Source{Label: cfg.Label, URL: cfg.URL}
	return Pipeline[models.Bounty]{
		Locator:   extract.BountyLocator(cfg.Anchor),
		Extractor: extract.NewBountyExtractor(src, cfg.Anchor, cfg.Currency, details),
		Key:       extract.BountyKey,
		Link:      func(b models.Bounty) string { return b.Link },
		Fallback:  BountyFallback,
		Active:    ActiveBounties,
	}, nil
}

func options(name string, cfg config.FeedConfig, m *metrics.Metrics, now func() time.Time) (Options, error) {
	modes := make([]fetch.Mode, 0, len(cfg.Modes))
	for _, s := range cfg.Modes {
		mode, err := fetch.ParseMode(s)
		if err != nil {
			return Options{}, fmt.Errorf("%s feed: %w", name, err)
		}
		modes = append(modes, mode)
	}
	return Options{
		Name:    name,
		Source:  models.Source{Label: cfg.Label, URL: cfg.URL},
		FeedURL: cfg.FeedURL,
		Modes:   modes,
		Metrics: m,
		Now:     now,
	}, nil
}

// NewEvents builds the events feed from configuration. now may be nil.
func NewEvents(cfg config.FeedConfig, loc *time.Location, f fetch.Fetcher, m *metrics.Metrics, now func() time.Time) (*Feed[models.Event], error) {
	p, err := EventPipeline(cfg, loc)
	if err != nil {
		return nil, err
	}
	opts, err := options("events", cfg, m, now)
	if err != nil {
		return nil, err
	}
	return New(f, p, opts), nil
}

// NewBounties builds the bounties feed from configuration. now may be nil.
func NewBounties(cfg config.FeedConfig, f fetch.Fetcher, m *metrics.Metrics, now func() time.Time) (*Feed[models.Bounty], error) {
	p, err := BountyPipeline(cfg)
	if err != nil {
		return nil, err
	}
	opts, err := options("bounties", cfg, m, now)
	if err != nil {
		return nil, err
	}
	return New(f, p, opts), nil
}
