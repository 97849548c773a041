package details

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/communitybot/feedwatch/internal/fetch"
)

const eventPage = `<html><head>
<meta property="og:image" content="/covers/demo-day.png">
</head><body>
<nav><a href="/">Home</a></nav>
<h1>Superteam Ireland Demo Day</h1>
<div class="date">September 19, 2025 6:00 PM</div>
<div class="location">Dogpatch Labs,
   Dublin</div>
<div class="event-description"><p>Join builders from across Ireland for an evening of <strong>live demos</strong>, pizza and networking.</p></div>
<div class="hosts">
  <div>Hosted by</div><div>Superteam Ireland</div>
  <div>Presented by Solana Foundation</div>
  <div>Hosted by Superteam Ireland</div>
</div>
<div class="guests"><span>1,204 Going</span></div>
<a class="cta" href="/demo-day/register">Register</a>
</body></html>`

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(eventPage))
	}))
	defer srv.Close()

	c := New(fetch.New(fetch.Options{Browser: fetch.BrowserOptions{Disabled: true}}))
	d, err := c.Get(context.Background(), srv.URL+"/demo-day")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if d.Title != "Superteam Ireland Demo Day" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.Location != "Dogpatch Labs, Dublin" {
		t.Errorf("Location = %q", d.Location)
	}
	if d.Date != "September 19, 2025" || d.Time != "6:00 PM" {
		t.Errorf("Date, Time = %q, %q", d.Date, d.Time)
	}
	if !strings.Contains(d.Description, "**live demos**") {
		t.Errorf("Description not converted to markdown: %q", d.Description)
	}
	if len(d.Hosts) != 2 || d.Hosts[0] != "Superteam Ireland" || d.Hosts[1] != "Solana Foundation" {
		t.Errorf("Hosts = %q", d.Hosts)
	}
	if d.Attendees != 1204 {
		t.Errorf("Attendees = %d", d.Attendees)
	}
	if d.RegistrationURL != srv.URL+"/demo-day/register" {
		t.Errorf("RegistrationURL = %q", d.RegistrationURL)
	}
	if d.Image != srv.URL+"/covers/demo-day.png" {
		t.Errorf("Image = %q", d.Image)
	}
	if d.URL != srv.URL+"/demo-day" {
		t.Errorf("URL = %q", d.URL)
	}
}

func TestExtractParagraphFallback(t *testing.T) {
	body := `<html><body><h1>Builders Night</h1>
<p>Short intro.</p>
<p>An informal meetup for anyone building on Solana in Dublin, bring a laptop.</p>
</body></html>`
	doc, err := fetch.NewDocument("https://luma.com/builders-night", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	d := Extract(doc)
	if d.Description != "An informal meetup for anyone building on Solana in Dublin, bring a laptop." {
		t.Errorf("Description = %q", d.Description)
	}
	if d.Hosts != nil || d.Attendees != 0 || d.RegistrationURL != "" || d.Image != "" {
		t.Errorf("unexpected fields: %+v", d)
	}
}

func TestGetErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	defer srv.Close()

	c := New(fetch.New(fetch.Options{}))
	if _, err := c.Get(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := c.Get(context.Background(), srv.URL+"/blank"); err == nil {
		t.Error("expected error for page without a title")
	}
}
