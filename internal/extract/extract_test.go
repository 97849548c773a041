package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/communitybot/feedwatch/internal/fetch"
	"github.com/communitybot/feedwatch/pkg/models"
)

const (
	bountyURL = "https://earn.superteam.fun/search?q=ireland"
	eventURL  = "https://luma.com/SuperteamIE"
	anchor    = "Superteam Ireland"
)

func mustDoc(t *testing.T, pageURL, body string) *fetch.Document {
	t.Helper()
	doc, err := fetch.NewDocument(pageURL, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	return doc
}

func mustPatterns(t *testing.T, patterns ...string) []*regexp.Regexp {
	t.Helper()
	res, err := CompilePatterns(patterns)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func dublin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Dublin")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func bountyExtractor(t *testing.T) *BountyExtractor {
	return NewBountyExtractor(models.Source{Label: "Superteam Earn", URL: bountyURL}, anchor, "USDC", mustPatterns(t, `/listings?/`))
}

func TestBountyFlattenedCard(t *testing.T) {
	doc := mustDoc(t, bountyURL, `<html><body>
		<div class="grid"><a href="/listings/bounty/design-a-logo">Design a LogoSuperteam Ireland250USDC|Bounty|Due in 5d|1</a></div>
	</body></html>`)

	cands := BountyLocator(anchor).Locate(doc)
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	fetchedAt := time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC)
	res := Run[models.Bounty](doc, cands, bountyExtractor(t), fetchedAt)
	if len(res.Records) != 1 {
		t.Fatalf("records = %d (rejected %d), want 1", len(res.Records), res.Rejected)
	}
	b := res.Records[0]
	if b.Title != "Design a Logo" || b.Reward != "250 USDC" || b.Deadline != "5d" {
		t.Errorf("got {%q, %q, %q}, want {Design a Logo, 250 USDC, 5d}", b.Title, b.Reward, b.Deadline)
	}
	if !b.DueAt.Equal(fetchedAt.AddDate(0, 0, 5)) {
		t.Errorf("DueAt = %s", b.DueAt)
	}
	if b.Link != "https://earn.superteam.fun/listings/bounty/design-a-logo" {
		t.Errorf("Link = %q", b.Link)
	}
	if b.Source != "Superteam Earn" {
		t.Errorf("Source = %q", b.Source)
	}
}

func TestBountyLocatorRequiresAnchor(t *testing.T) {
	doc := mustDoc(t, bountyURL, `<html><body>
		<div class="bounty-card"><h3>Write a Thread</h3>Superteam Germany 300 USDC Due in 3d</div>
		<div class="bounty-card"><h3>Build a Bot</h3>Superteam Vietnam 500 USDC Due in 1mo</div>
		<button>Sign up</button>
	</body></html>`)
	if got := BountyLocator(anchor).Locate(doc); len(got) != 0 {
		t.Fatalf("candidates = %d, want 0", len(got))
	}
}

func TestBountyLocatorStrategies(t *testing.T) {
	var cards strings.Builder
	for i := range 12 {
		fmt.Fprintf(&cards, `<div class="bounty-card"><h3>Bounty Number %d</h3>Superteam Ireland %d00 USDC Due in %dd</div>`, i, i+1, i+1)
	}
	tests := []struct {
		name     string
		body     string
		want     int
		strategy string
	}{
		{"selectors suffice", cards.String(), 12, "selectors"},
		{"document scan", `<main><p>Translate the docs for Superteam Ireland, 100 USDC, Due in 2d</p></main>`, 1, "document"},
		{"interactive", `<button>Superteam Ireland!</button>`, 1, "interactive"},
		{"duplicate text", `<section><p>Superteam Ireland meetup bounty</p></section><section><p>Superteam Ireland meetup bounty</p></section>`, 1, "selectors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, bountyURL, "<html><body>"+tt.body+"</body></html>")
			got := BountyLocator(anchor).Locate(doc)
			if len(got) != tt.want {
				t.Fatalf("candidates = %d, want %d", len(got), tt.want)
			}
			if got[0].Strategy != tt.strategy {
				t.Errorf("strategy = %q, want %q", got[0].Strategy, tt.strategy)
			}
		})
	}
}

func TestBountyExtract(t *testing.T) {
	fetchedAt := time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		body    string
		title   string
		reward  string
		wantErr bool
	}{
		{"heading", `<div class="c"><h3>Bounty: Community Video</h3><span>Superteam Ireland</span><span>1,500 USDC</span><span>Due in 10d</span></div>`, "Community Video", "1,500 USDC", false},
		{"no reward", `<div class="c"><h4>Solana Explainer Thread</h4>Superteam Ireland | Due in 1mo</div>`, "Solana Explainer Thread", "TBD", false},
		{"keeps foundry", `<div class="c"><h3>The Foundry Hack Night Recap</h3>Superteam Ireland 50 USDC Due in 1 month</div>`, "The Foundry Hack Night Recap", "50 USDC", false},
		{"no deadline", `<div class="c"><h3>Open Community Grant</h3>Superteam Ireland 100 USDC</div>`, "", "", true},
		{"dangling word", `<div class="c"><h3>Write a thread for</h3>Superteam Ireland 100 USDC Due in 4d</div>`, "", "", true},
		{"too short", `<div class="c"><h3>Logo</h3>Superteam Ireland 100 USDC Due in 4d</div>`, "", "", true},
		{"chrome", `<div class="c"><h3>Found 3 results</h3>Superteam Ireland 100 USDC Due in 4d</div>`, "", "", true},
		{"expired", `<div class="c"><h3>Expired Design Contest</h3>Superteam Ireland 100 USDC Due in 4d</div>`, "", "", true},
	}
	ex := bountyExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, bountyURL, "<html><body>"+tt.body+"</body></html>")
			sel := doc.Doc.Find("div.c")
			c := Candidate{Sel: sel, Text: fetch.VisibleText(sel)}
			b, err := ex.Extract(doc, c, fetchedAt)
			if tt.wantErr {
				if !errors.Is(err, ErrRejected) {
					t.Fatalf("err = %v, want ErrRejected", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if b.Title != tt.title || b.Reward != tt.reward {
				t.Errorf("got (%q, %q), want (%q, %q)", b.Title, b.Reward, tt.title, tt.reward)
			}
			if b.Link != bountyURL {
				t.Errorf("Link = %q, want feed url", b.Link)
			}
		})
	}
}

func eventExtractor(t *testing.T) *EventExtractor {
	return NewEventExtractor(
		models.Source{Label: "Luma Calendar", URL: eventURL},
		dublin(t),
		[]string{"Dublin, Ireland", "Online", "Dogpatch Labs", "Dogpatch", "The Foundry"},
		"Dublin, Ireland",
		mustPatterns(t, `/events?/`, `luma\.com/[^/]+/[^/]+`, `lu\.ma/[^/?#]+`),
	)
}

func TestEventExtract(t *testing.T) {
	loc := dublin(t)
	fetchedAt := time.Date(2025, time.September, 10, 12, 0, 0, 0, loc)
	tests := []struct {
		name     string
		body     string
		title    string
		at       time.Time
		location string
		link     string
	}{
		{
			name: "structured card",
			body: `<div class="event-card"><a href="https://lu.ma/abc123"><h3>Solana Builders Night</h3>
				<div class="date">19 Sep 2025</div><div class="time">3:00 PM - 6:00 PM</div>
				<div class="location">Dogpatch Labs, Dublin</div></a></div>`,
			title:    "Solana Builders Night",
			at:       time.Date(2025, time.September, 19, 15, 0, 0, 0, loc),
			location: "Dogpatch Labs, Dublin",
			link:     "https://lu.ma/abc123",
		},
		{
			name: "free text",
			body: `<article><p>Intro to Anchor Workshop</p><p>Sunday, Sep 21, 2025 · 10am - 1pm</p><p>online via the foundry stream</p>
				<a href="/about">About</a><a href="/events/intro-anchor">Details</a></article>`,
			title:    "Intro to Anchor Workshop",
			at:       time.Date(2025, time.September, 21, 10, 0, 0, 0, loc),
			location: "Online",
			link:     "https://luma.com/events/intro-anchor",
		},
		{
			name:     "tomorrow",
			body:     `<article><p>Founders Breakfast</p><p>Tomorrow 8am</p></article>`,
			title:    "Founders Breakfast",
			at:       fetchedAt.AddDate(0, 0, 1),
			location: "Dublin, Ireland",
			link:     eventURL,
		},
		{
			name:     "past bare clock rolls forward",
			body:     `<article><h2>Morning Coffee Chat</h2><span class="date">9:30</span></article>`,
			title:    "Morning Coffee Chat",
			at:       time.Date(2025, time.September, 11, 9, 30, 0, 0, loc),
			location: "Dublin, Ireland",
			link:     eventURL,
		},
		{
			name:     "datetime attribute",
			body:     `<article><h2>Hack Night</h2><time datetime="2025-10-02T18:30:00+01:00">Thu</time></article>`,
			title:    "Hack Night",
			at:       time.Date(2025, time.October, 2, 18, 30, 0, 0, loc),
			location: "Dublin, Ireland",
			link:     eventURL,
		},
	}
	ex := eventExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, eventURL, "<html><body>"+tt.body+"</body></html>")
			cands := EventLocator("").Locate(doc)
			if len(cands) == 0 {
				t.Fatal("no candidates")
			}
			ev, err := ex.Extract(doc, cands[0], fetchedAt)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if ev.Title != tt.title {
				t.Errorf("Title = %q, want %q", ev.Title, tt.title)
			}
			if !ev.StartsAt.Equal(tt.at) {
				t.Errorf("StartsAt = %s, want %s", ev.StartsAt, tt.at)
			}
			if ev.Location != tt.location {
				t.Errorf("Location = %q, want %q", ev.Location, tt.location)
			}
			if ev.Link != tt.link {
				t.Errorf("Link = %q, want %q", ev.Link, tt.link)
			}
		})
	}
}

func TestEventLocatorSkipsChrome(t *testing.T) {
	doc := mustDoc(t, eventURL, `<html><body>
		<div><p>Explore the calendar and sign in to see events</p></div>
		<div><p>Networking drinks after the talks, Dogpatch Labs</p></div>
	</body></html>`)
	cands := EventLocator("").Locate(doc)
	for _, c := range cands {
		if strings.Contains(strings.ToLower(c.Text), "calendar") {
			t.Errorf("chrome candidate %q located", c.Text)
		}
	}
	if len(cands) == 0 {
		t.Fatal("no candidates")
	}
}

type panicky struct{}

func (panicky) Extract(_ *fetch.Document, c Candidate, _ time.Time) (string, error) {
	switch c.Text {
	case "boom":
		panic("nil element")
	case "skip":
		return "", reject("not a record")
	}
	return c.Text, nil
}

func TestRunSkipsBadCandidates(t *testing.T) {
	cands := []Candidate{{Text: "one"}, {Text: "boom"}, {Text: "skip"}, {Text: "two"}}
	res := Run[string](nil, cands, panicky{}, time.Now())
	if strings.Join(res.Records, ",") != "one,two" {
		t.Errorf("Records = %v", res.Records)
	}
	if res.Malformed != 1 || res.Rejected != 1 {
		t.Errorf("Malformed = %d, Rejected = %d", res.Malformed, res.Rejected)
	}
}

func TestDedup(t *testing.T) {
	at := time.Date(2025, time.September, 19, 18, 0, 0, 0, time.UTC)
	events := []models.Event{
		{Title: "Hack Night", StartsAt: at, Link: "first"},
		{Title: "Hack Night", StartsAt: at, Link: "second"},
		{Title: "Hack Night", StartsAt: at.AddDate(0, 0, 7)},
		{Title: "Demo Day", StartsAt: at},
	}
	got := Dedup(events, EventKey)
	if len(got) != 3 || got[0].Link != "first" {
		t.Errorf("Dedup(events) = %+v", got)
	}

	bounties := []models.Bounty{
		{Title: "Design a Logo", Deadline: "5d"},
		{Title: "Design a Logo", Deadline: "10d"},
		{Title: "Write a Thread", Deadline: "5d"},
	}
	gotB := Dedup(bounties, BountyKey)
	if len(gotB) != 2 || gotB[0].Deadline != "5d" {
		t.Errorf("Dedup(bounties) = %+v", gotB)
	}
}

func TestFirstTitleRuleOrder(t *testing.T) {
	doc := mustDoc(t, bountyURL, `<div class="c">Bounty:   Tweet   Storm Superteam Ireland 20 USDC</div>`)
	sel := doc.Doc.Find("div.c")
	c := Candidate{Sel: sel, Text: fetch.VisibleText(sel)}
	rules := []TitleRule{Heading(bountyHeadings), AnchorPrefix(anchor, "USDC"), LeadingWords(5)}
	title, rule, ok := FirstTitle(c, rules)
	if !ok || rule != "anchor-prefix" || title != "Tweet Storm" {
		t.Errorf("FirstTitle = %q via %q (%v)", title, rule, ok)
	}

	_, rule, _ = FirstTitle(Candidate{Sel: sel, Text: "Just some words here and more"}, rules)
	if rule != "leading-words" {
		t.Errorf("rule = %q, want leading-words", rule)
	}
}

func TestBountyWrapperIsNotARecord(t *testing.T) {
	doc := mustDoc(t, bountyURL, `<html><body><div class="app">
		<header><h2>Superteam Earn</h2></header>
		<div class="row"><a href="/listing/logo">Design a LogoSuperteam Ireland250USDC|Bounty|Due in 5d|1</a></div>
		<div class="row"><a href="/listing/thread">Write a ThreadSuperteam Ireland100USDC|Bounty|Due in 10d|2</a></div>
	</div></body></html>`)

	cands := BountyLocator(anchor).Locate(doc)
	fetchedAt := time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC)
	res := Run[models.Bounty](doc, cands, bountyExtractor(t), fetchedAt)
	var titles []string
	for _, b := range res.Records {
		titles = append(titles, b.Title)
	}
	if got := strings.Join(titles, ","); got != "Design a Logo,Write a Thread" {
		t.Errorf("titles = %q, want the two cards only", got)
	}

	app := doc.Doc.Find("div.app")
	_, err := bountyExtractor(t).Extract(doc, Candidate{Sel: app, Text: fetch.VisibleText(app)}, fetchedAt)
	if !errors.Is(err, ErrRejected) {
		t.Errorf("wrapper err = %v, want ErrRejected", err)
	}
}

func TestBountyHeadingAfterAnchorIgnored(t *testing.T) {
	doc := mustDoc(t, bountyURL, `<html><body><div class="c">Translate the Docs Superteam Ireland 250 USDC Due in 5d<h4>Share this listing</h4></div></body></html>`)
	sel := doc.Doc.Find("div.c")
	b, err := bountyExtractor(t).Extract(doc, Candidate{Sel: sel, Text: fetch.VisibleText(sel)}, time.Now())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if b.Title != "Translate the Docs" {
		t.Errorf("Title = %q, want Translate the Docs", b.Title)
	}
}

func TestEventWrapperFallsThroughToCards(t *testing.T) {
	loc := dublin(t)
	doc := mustDoc(t, eventURL, `<html><body><section class="events-section">
		<h2>Upcoming meetups</h2>
		<div class="card"><h3>Solana Builders Meetup</h3><p>Sep 30, 2025 6:00 PM</p><p>Dogpatch Labs</p></div>
		<div class="card"><h3>Anchor Workshop</h3><p>Oct 14, 2025 10:00 AM</p><p>The Foundry</p></div>
	</section></body></html>`)

	cands := EventLocator("").Locate(doc)
	fetchedAt := time.Date(2025, time.September, 10, 12, 0, 0, 0, loc)
	res := Run[models.Event](doc, cands, eventExtractor(t), fetchedAt)
	if len(res.Records) != 2 {
		t.Fatalf("records = %+v, want 2", res.Records)
	}
	first := res.Records[0]
	if first.Title != "Solana Builders Meetup" || first.Location != "Dogpatch Labs" {
		t.Errorf("first = {%q, %q}", first.Title, first.Location)
	}
	if want := time.Date(2025, time.September, 30, 18, 0, 0, 0, loc); !first.StartsAt.Equal(want) {
		t.Errorf("StartsAt = %s, want %s", first.StartsAt, want)
	}
	if res.Records[1].Title != "Anchor Workshop" {
		t.Errorf("second title = %q", res.Records[1].Title)
	}
}

func TestDistinctDays(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Hack Night Sunday, Sep 21, 2025 · 10am - 1pm", 1},
		{"Demo Day 30 Sep 2025 and again on Sep 30", 1},
		{"Meetup Sep 30, 2025 Workshop Oct 14, 2025", 2},
		{"Coffee chat at 9:30", 0},
	}
	for _, tt := range tests {
		if got := distinctDays(tt.text); got != tt.want {
			t.Errorf("distinctDays(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
