package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestFetchHTTPSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Hello</h1><a href="/events/a">a</a></body></html>`))
	}))
	defer srv.Close()

	c := New(Options{UserAgent: "feedwatch-test/1.0"})
	doc, err := c.Fetch(context.Background(), srv.URL+"/page", ModeHTTP)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ua := got.Get("User-Agent"); ua != "feedwatch-test/1.0" {
		t.Errorf("User-Agent = %q", ua)
	}
	for _, h := range []string{"Accept", "Accept-Language", "Upgrade-Insecure-Requests"} {
		if got.Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
	if doc.Mode != ModeHTTP {
		t.Errorf("Mode = %s", doc.Mode)
	}
	if title := doc.Doc.Find("h1").Text(); title != "Hello" {
		t.Errorf("h1 = %q", title)
	}
	href, _ := doc.Doc.Find("a").Attr("href")
	if want := srv.URL + "/events/a"; doc.Resolve(href) != want {
		t.Errorf("Resolve = %q, want %q", doc.Resolve(href), want)
	}
}

func TestFetchHTTPFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusFound)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="x">x</a>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	doc, err := New(Options{}).Fetch(context.Background(), srv.URL+"/old", ModeHTTP)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got, want := doc.Resolve("x"), srv.URL+"/new/x"; got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestFetchHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), srv.URL, ModeHTTP)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %v is not a FetchError", err)
	}
	if fe.Mode != ModeHTTP || fe.URL != srv.URL {
		t.Errorf("FetchError = %+v", fe)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Errorf("want StatusError 403, got %v", err)
	}
}

func TestFetchHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(Options{HTTPTimeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL, ModeHTTP)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false", err)
	}
}

func TestFetchBrowserDisabled(t *testing.T) {
	c := New(Options{Browser: BrowserOptions{Disabled: true}})
	_, err := c.Fetch(context.Background(), "https://example.com", ModeBrowser)
	if !errors.Is(err, ErrBrowserDisabled) {
		t.Fatalf("err = %v, want ErrBrowserDisabled", err)
	}
}

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Meetups</title><link>https://example.com/</link>
<item>
  <title>Solana Builders Night</title>
  <link>https://example.com/events/builders</link>
  <pubDate>Fri, 19 Sep 2025 18:00:00 +0100</pubDate>
  <category>Dublin</category>
  <description>Talks &amp; pizza</description>
</item>
<item>
  <title></title>
  <link>https://example.com/events/untitled</link>
</item>
</channel></rss>`

func TestFetchFeedRendersCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	loc, err := time.LoadLocation("Europe/Dublin")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := New(Options{Location: loc}).Fetch(context.Background(), srv.URL, ModeFeed)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	cards := doc.Doc.Find("article")
	if cards.Length() != 1 {
		t.Fatalf("cards = %d, want 1", cards.Length())
	}
	if got := cards.Find("h3").Text(); got != "Solana Builders Night" {
		t.Errorf("title = %q", got)
	}
	if got := cards.Find(".date").Text(); got != "19 Sep 2025" {
		t.Errorf("date = %q", got)
	}
	if got := cards.Find(".time").Text(); got != "6:00 PM" {
		t.Errorf("time = %q", got)
	}
	if href, _ := cards.Find("a").Attr("href"); href != "https://example.com/events/builders" {
		t.Errorf("href = %q", href)
	}
	if !strings.Contains(VisibleText(cards), "Talks & pizza") {
		t.Errorf("description missing from %q", VisibleText(cards))
	}
}

func TestTextSkipsInvisible(t *testing.T) {
	doc, err := NewDocument("https://example.com", strings.NewReader(
		`<html><head><title>T</title><style>.a{}</style></head><body>
		<p>One</p><script>var x = 1;</script><noscript>enable js</noscript><p>Two</p>
		</body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	got := doc.Text()
	if got != "One Two" {
		t.Errorf("Text = %q, want %q", got, "One Two")
	}
}

func TestResolve(t *testing.T) {
	doc, err := NewDocument("https://earn.superteam.fun/search?q=ireland", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"/listings/bounty/logo": "https://earn.superteam.fun/listings/bounty/logo",
		"https://lu.ma/abc":     "https://lu.ma/abc",
		"#top":                  "",
		"javascript:void(0)":    "",
		"":                      "",
		"listings/x":            "https://earn.superteam.fun/listings/x",
	}
	for in, want := range tests {
		if got := doc.Resolve(in); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeHTTP, ModeBrowser, ModeFeed} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("carrier-pigeon"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLines(t *testing.T) {
	doc, err := NewDocument("https://example.com", strings.NewReader(
		`<div class="card"><h3>Builders  Night</h3><span>Fri</span> <span>6pm</span><br>Dogpatch Labs<p></p></div>`))
	if err != nil {
		t.Fatal(err)
	}
	got := Lines(doc.Doc.Find(".card"))
	want := []string{"Builders Night", "Fri 6pm", "Dogpatch Labs"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Lines = %q, want %q", got, want)
	}
}
