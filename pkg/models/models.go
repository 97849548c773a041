package models

import "time"

// DeadlineTBD marks a bounty whose deadline or reward is unknown.
const DeadlineTBD = "TBD"

// Source identifies one external feed.
type Source struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Event struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	StartsAt    time.Time `json:"starts_at"`
	Location    string    `json:"location"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
}

type Bounty struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Reward   string `json:"reward"`
	Deadline string `json:"deadline"`
	// DueAt is the instant the deadline token resolves to, zero when Deadline is TBD.
	DueAt       time.Time `json:"due_at,omitempty"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
}

// Expired reports whether the bounty's deadline has passed at now.
// Bounties without a resolvable deadline never expire.
func (b Bounty) Expired(now time.Time) bool {
	if b.Deadline == DeadlineTBD || b.DueAt.IsZero() {
		return false
	}
	return b.DueAt.Before(now)
}

// Snapshot is the latest complete record set of one feed. It is replaced
// wholesale on every refresh and never mutated after publication.
type Snapshot[T any] struct {
	Records   []T       `json:"records"`
	FetchedAt time.Time `json:"fetched_at"` // zero before the first fetch
	Source    Source    `json:"source"`
	Fallback  bool      `json:"fallback"`
	// LastError is set when every fetch mode failed on the latest refresh.
	LastError string `json:"last_error,omitempty"`
}

type SeenBounty struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	SeenAt time.Time `json:"seen_at"`
}

// Status is the per-feed status query answer.
type Status struct {
	Label     string    `json:"label"`
	URL       string    `json:"url"`
	LastFetch time.Time `json:"last_fetch"`
	Total     int       `json:"total"`
	Active    int       `json:"active"`
	Fallback  bool      `json:"fallback"`
	LastError string    `json:"last_error,omitempty"`
}

type EventDetails struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Location        string   `json:"location"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	Hosts           []string `json:"hosts"`
	Attendees       int      `json:"attendees"`
	RegistrationURL string   `json:"registration_url"`
	Image           string   `json:"image"`
	URL             string   `json:"url"`
}
