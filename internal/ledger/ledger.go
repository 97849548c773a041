// Package ledger remembers which bounties have already been announced.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/communitybot/feedwatch/pkg/logger"
	"github.com/communitybot/feedwatch/pkg/models"
)

// ErrPersistence wraps every failure of the backing store.
var ErrPersistence = errors.New("ledger persistence")

// Store is the durable seen-bounty table.
type Store interface {
	IsBountySeen(ctx context.Context, id string) (bool, error)
	// AddSeenBounty inserts id unless present and reports whether it did.
	AddSeenBounty(ctx context.Context, id, title string, at time.Time) (bool, error)
	SeenBounties(ctx context.Context, limit int) ([]models.SeenBounty, error)
}

var nonIdentity = regexp.MustCompile(`[^A-Za-z0-9]+`)

const maxSlug = 64

// IdentityOf derives the stable identity of a bounty from its title and
// deadline. The readable slug is followed by a content hash so titles that
// differ only in punctuation stay distinct.
func IdentityOf(b models.Bounty) string {
	title := strings.Join(strings.Fields(b.Title), " ")
	deadline := strings.Join(strings.Fields(b.Deadline), " ")

	slug := strings.Trim(nonIdentity.ReplaceAllString(title+"_"+deadline, "_"), "_")
	if len(slug) > maxSlug {
		slug = strings.TrimRight(slug[:maxSlug], "_")
	}
	sum := sha256.Sum256([]byte(title + "\x00" + deadline))
	return slug + "-" + hex.EncodeToString(sum[:])[:12]
}

type Ledger struct {
	store Store
	now   func() time.Time

	// mu serializes DiffNew so two callers never both classify a record as new.
	mu sync.Mutex
}

func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithClock replaces the first-seen timestamp source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) HasSeen(ctx context.Context, id string) (bool, error) {
	seen, err := l.store.IsBountySeen(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: looking up %s: %w", ErrPersistence, id, err)
	}
	return seen, nil
}

// MarkSeen records id, reporting false when it was already present.
func (l *Ledger) MarkSeen(ctx context.Context, id, title string) (bool, error) {
	inserted, err := l.store.AddSeenBounty(ctx, id, title, l.now())
	if err != nil {
		return false, fmt.Errorf("%w: marking %s: %w", ErrPersistence, id, err)
	}
	return inserted, nil
}

// DiffNew returns the bounties not seen before, in input order, marking each
// one seen as it goes. A record is only returned once its mark has been
// stored. On a store failure the records marked so far are returned together
// with an error wrapping ErrPersistence.
func (l *Ledger) DiffNew(ctx context.Context, bounties []models.Bounty) ([]models.Bounty, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fresh []models.Bounty
	for _, b := range bounties {
		id := IdentityOf(b)
		inserted, err := l.MarkSeen(ctx, id, b.Title)
		if err != nil {
			return fresh, err
		}
		if inserted {
			logger.Debug("new bounty", "id", id, "title", b.Title)
			fresh = append(fresh, b)
		}
	}
	return fresh, nil
}

// Seen lists the most recently seen bounties, newest first.
func (l *Ledger) Seen(ctx context.Context, limit int) ([]models.SeenBounty, error) {
	seen, err := l.store.SeenBounties(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing: %w", ErrPersistence, err)
	}
	return seen, nil
}
