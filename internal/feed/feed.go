// Package feed owns the per-source ingestion state machines.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/communitybot/feedwatch/internal/extract"
	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/internal/metrics"
	"github.com/communitybot/feedwatch/pkg/logger"
	"github.com/communitybot/feedwatch/pkg/models"
)

type State int32

const (
	Idle State = iota
	Fetching
	Extracting
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Extracting:
		return "extracting"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Pipeline is the variant-specific half of a feed.
type Pipeline[T any] struct {
	Locator   *extract.Locator
	Extractor extract.Extractor[T]
	// Key deduplicates extracted records; the first record per key wins.
	Key      func(T) string
	Link     func(T) string
	Fallback func(src models.Source, now time.Time) []T
	// Active filters and orders records that are still relevant at now.
	Active func(records []T, now time.Time) []T
}

type Options struct {
	// Name labels logs and metrics, e.g. "events".
	Name   string
	Source models.Source
	// FeedURL is fetched instead of Source.URL in syndication mode.
	FeedURL string
	Modes   []fetch.Mode
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Feed runs one source's fetch-extract pipeline and holds its latest snapshot.
// Readers always see the previous snapshot while a refresh is in flight. A run
// moves through Fetching and Extracting (once per mode tried), is Ready while
// the new snapshot is installed and reported, and returns to Idle.
type Feed[T any] struct {
	name     string
	source   models.Source
	feedURL  string
	modes    []fetch.Mode
	fetcher  fetch.Fetcher
	pipeline Pipeline[T]
	metrics  *metrics.Metrics
	now      func() time.Time

	group singleflight.Group
	state atomic.Int32

	mu      sync.RWMutex
	snap    models.Snapshot[T]
	lastRun string
	lastErr error
}

func New[T any](fetcher fetch.Fetcher, p Pipeline[T], opts Options) *Feed[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Modes) == 0 {
		opts.Modes = []fetch.Mode{fetch.ModeHTTP, fetch.ModeBrowser}
	}
	return &Feed[T]{
		name:     opts.Name,
		source:   opts.Source,
		feedURL:  opts.FeedURL,
		modes:    opts.Modes,
		fetcher:  fetcher,
		pipeline: p,
		metrics:  opts.Metrics,
		now:      opts.Now,
		snap:     models.Snapshot[T]{Source: opts.Source},
	}
}

func (f *Feed[T]) Name() string          { return f.name }
func (f *Feed[T]) Source() models.Source { return f.source }
func (f *Feed[T]) State() State          { return State(f.state.Load()) }

// Refresh runs the pipeline and replaces the snapshot, returning the number of
// extracted records. Concurrent calls share one run. The run is not cancelled
// with ctx; fetch timeouts bound it. An error means every fetch mode failed,
// in which case the fallback snapshot has still been installed.
func (f *Feed[T]) Refresh(ctx context.Context) (int, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, shared := f.group.Do("refresh", func() (any, error) {
		return f.refresh(ctx)
	})
	if shared {
		logger.Debug("joined in-flight refresh", "feed", f.name)
	}
	n, _ := v.(int)
	return n, err
}

func (f *Feed[T]) refresh(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	log := logger.With("feed", f.name, "run", runID)
	start := f.now()
	log.Info("refresh started", "url", f.source.URL)

	var (
		records []T
		errs    []error
	)
	for _, mode := range f.modes {
		recs, err := f.attempt(ctx, mode, log)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(recs) > 0 {
			records = recs
			break
		}
	}

	done := f.now()
	snap := models.Snapshot[T]{Records: records, FetchedAt: done, Source: f.source}
	outcome := "ok"
	if len(records) == 0 {
		snap.Records = f.pipeline.Fallback(f.source, done)
		snap.Fallback = true
		outcome = "fallback"
	}

	var err error
	if len(errs) == len(f.modes) {
		err = errors.Join(errs...)
		outcome = "error"
	}

	f.mu.Lock()
	f.snap = snap
	f.lastRun = runID
	f.lastErr = err
	f.mu.Unlock()
	f.state.Store(int32(Ready))

	f.metrics.ObserveRefresh(f.name, outcome, len(records), done)
	log.Info("refresh finished", "records", len(records), "fallback", snap.Fallback, "outcome", outcome, "took", done.Sub(start).Truncate(time.Millisecond))
	f.state.Store(int32(Idle))
	if err != nil {
		return 0, fmt.Errorf("refreshing %s: %w", f.name, err)
	}
	return len(records), nil
}

// attempt fetches and extracts with one mode. A nil error with no records
// means the document held nothing usable and the next mode should be tried.
func (f *Feed[T]) attempt(ctx context.Context, mode fetch.Mode, log *slog.Logger) ([]T, error) {
	url := f.source.URL
	if mode == fetch.ModeFeed {
		url = f.feedURL
	}

	f.state.Store(int32(Fetching))
	began := time.Now()
	doc, err := f.fetcher.Fetch(ctx, url, mode)
	f.metrics.ObserveFetch(f.name, mode.String(), time.Since(began), err)
	if err != nil {
		if errors.Is(err, fetch.ErrBrowserDisabled) {
			log.Info("skipping disabled mode", "mode", mode)
		} else {
			log.Warn("fetch failed", "mode", mode, "error", err, "timeout", fetch.IsTimeout(err))
		}
		return nil, err
	}

	f.state.Store(int32(Extracting))
	fetchedAt := f.now()
	cands := f.pipeline.Locator.Locate(doc)
	if len(cands) == 0 {
		log.Info("no candidates", "mode", mode, "text_chars", utf8.RuneCountInString(doc.Text()))
	}
	res := extract.Run(doc, cands, f.pipeline.Extractor, fetchedAt)
	records := extract.Dedup(res.Records, f.pipeline.Key)
	f.metrics.ObserveExtract(f.name, mode.String(), len(cands), res.Rejected, res.Malformed)
	log.Info("extracted", "mode", mode, "candidates", len(cands), "records", len(records),
		"rejected", res.Rejected, "malformed", res.Malformed)
	return records, nil
}

// Snapshot returns the current snapshot. Records must not be modified.
func (f *Feed[T]) Snapshot() models.Snapshot[T] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap
}

// ActiveOrUpcoming returns at most limit still-relevant records from the
// current snapshot, or the fallback set when none remain. limit <= 0 means all.
func (f *Feed[T]) ActiveOrUpcoming(limit int) []T {
	snap := f.Snapshot()
	now := f.now()
	active := f.pipeline.Active(snap.Records, now)
	if len(active) == 0 {
		return f.pipeline.Fallback(f.source, now)
	}
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active
}

// Status answers the per-feed status query. Fallback snapshots count as empty.
func (f *Feed[T]) Status() models.Status {
	f.mu.RLock()
	snap, lastErr := f.snap, f.lastErr
	f.mu.RUnlock()
	st := models.Status{
		Label:     f.source.Label,
		URL:       f.source.URL,
		LastFetch: snap.FetchedAt,
		Fallback:  snap.Fallback,
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	if !snap.Fallback {
		st.Total = len(snap.Records)
		st.Active = len(f.pipeline.Active(snap.Records, f.now()))
	}
	return st
}

// Lookup finds a record in the current snapshot by link.
func (f *Feed[T]) Lookup(link string) (T, bool) {
	snap := f.Snapshot()
	if !snap.Fallback {
		for _, r := range snap.Records {
			if f.pipeline.Link(r) == link {
				return r, true
			}
		}
	}
	var zero T
	return zero, false
}
