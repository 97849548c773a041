// Package format renders snapshots, event details and status as plain
// multi-line text for chat messages and the terminal.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/communitybot/feedwatch/pkg/models"
)

const (
	eventLayout    = "Monday, 2 January 2006 at 3:04 PM"
	timestampShort = "2 Jan 2006 15:04 MST"
	maxDescription = 500
)

// Events lists events with rank, title, start, location and link.
func Events(events []models.Event, src models.Source, loc *time.Location) string {
	if len(events) == 0 {
		return "No upcoming events found. Check back later!"
	}
	var b strings.Builder
	b.WriteString("Upcoming events\n\n")
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ev.Title)
		fmt.Fprintf(&b, "   Date: %s\n", ev.StartsAt.In(loc).Format(eventLayout))
		fmt.Fprintf(&b, "   Location: %s\n", ev.Location)
		fmt.Fprintf(&b, "   RSVP: %s\n", ev.Link)
		if ev.Description != "" {
			fmt.Fprintf(&b, "   %s\n", ev.Description)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "View all events: %s (%s)", src.Label, src.URL)
	return b.String()
}

// Bounties lists bounties with rank, title, reward, deadline and link.
func Bounties(bounties []models.Bounty, src models.Source) string {
	if len(bounties) == 0 {
		return "No active bounties found. Check back later!"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active bounties (%d)\n\n", len(bounties))
	writeBounties(&b, bounties)
	fmt.Fprintf(&b, "More bounties: %s (%s)", src.Label, src.URL)
	return b.String()
}

// NewBounties announces bounties that were not seen before.
func NewBounties(bounties []models.Bounty) string {
	var b strings.Builder
	if len(bounties) == 1 {
		b.WriteString("New bounty posted\n\n")
	} else {
		fmt.Fprintf(&b, "%d new bounties posted\n\n", len(bounties))
	}
	writeBounties(&b, bounties)
	return strings.TrimRight(b.String(), "\n")
}

func writeBounties(b *strings.Builder, bounties []models.Bounty) {
	for i, bt := range bounties {
		fmt.Fprintf(b, "%d. %s\n", i+1, bt.Title)
		fmt.Fprintf(b, "   Reward: %s\n", bt.Reward)
		deadline := bt.Deadline
		if deadline != models.DeadlineTBD {
			deadline = "due in " + deadline
		}
		fmt.Fprintf(b, "   Deadline: %s\n", deadline)
		fmt.Fprintf(b, "   Details: %s\n", bt.Link)
		if bt.Description != "" && bt.Description != bt.Title {
			fmt.Fprintf(b, "   %s\n", bt.Description)
		}
		b.WriteString("\n")
	}
}

// EventDetails renders one event page. Empty fields are omitted.
func EventDetails(d models.EventDetails) string {
	if d.Title == "" {
		return "Sorry, I couldn't fetch the event details. Please try again later."
	}
	var b strings.Builder
	b.WriteString(d.Title + "\n\n")
	if d.Description != "" {
		fmt.Fprintf(&b, "About:\n%s\n\n", truncate(d.Description, maxDescription))
	}
	if d.Date != "" || d.Time != "" {
		when := d.Date
		switch {
		case d.Date != "" && d.Time != "":
			when = d.Date + " at " + d.Time
		case d.Time != "":
			when = d.Time
		}
		fmt.Fprintf(&b, "When: %s\n", when)
	}
	if d.Location != "" {
		fmt.Fprintf(&b, "Where: %s\n", d.Location)
	}
	if len(d.Hosts) > 0 {
		fmt.Fprintf(&b, "Hosted by: %s\n", strings.Join(d.Hosts, ", "))
	}
	if d.Attendees > 0 {
		fmt.Fprintf(&b, "Attendees: %d going\n", d.Attendees)
	}
	if d.RegistrationURL != "" {
		fmt.Fprintf(&b, "Register: %s\n", d.RegistrationURL)
	}
	if d.URL != "" {
		fmt.Fprintf(&b, "Page: %s\n", d.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Status renders the status of both feeds.
func Status(events, bounties models.Status, loc *time.Location) string {
	var b strings.Builder
	writeStatus(&b, "Events", "Upcoming", events, loc)
	b.WriteString("\n")
	writeStatus(&b, "Bounties", "Active", bounties, loc)
	return strings.TrimRight(b.String(), "\n")
}

func writeStatus(b *strings.Builder, name, activeLabel string, st models.Status, loc *time.Location) {
	fmt.Fprintf(b, "%s: %s\n", name, st.Label)
	fmt.Fprintf(b, "  URL: %s\n", st.URL)
	fmt.Fprintf(b, "  Last fetch: %s\n", LastFetch(st.LastFetch, loc))
	fmt.Fprintf(b, "  Total: %d\n", st.Total)
	fmt.Fprintf(b, "  %s: %d\n", activeLabel, st.Active)
	if st.Fallback {
		b.WriteString("  Serving fallback: source temporarily unavailable\n")
	}
	if st.LastError != "" {
		fmt.Fprintf(b, "  Last error: %s\n", st.LastError)
	}
}

// LastFetch renders a fetch instant, "never" when t is zero.
func LastFetch(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "never"
	}
	return t.In(loc).Format(timestampShort)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
