package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type sent struct {
	path string
	msg  sendMessageRequest
}

func fakeAPI(t *testing.T, fail map[int64]bool) (*httptest.Server, func() []sent) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []sent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg sendMessageRequest
		if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		}
		mu.Lock()
		got = append(got, sent{path: r.URL.Path, msg: msg})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail[msg.ChatID] {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []sent {
		mu.Lock()
		defer mu.Unlock()
		return append([]sent(nil), got...)
	}
}

func TestSendMessage(t *testing.T) {
	srv, requests := fakeAPI(t, nil)
	c := NewClient("123:abc", srv.URL+"/", 0)

	if err := c.SendMessage(context.Background(), 42, "New bounty posted"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := requests()
	if len(got) != 1 {
		t.Fatalf("requests = %d", len(got))
	}
	if got[0].path != "/bot123:abc/sendMessage" {
		t.Errorf("path = %q", got[0].path)
	}
	if got[0].msg.ChatID != 42 || got[0].msg.Text != "New bounty posted" || !got[0].msg.DisableWebPagePreview {
		t.Errorf("message = %+v", got[0].msg)
	}
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	srv, requests := fakeAPI(t, map[int64]bool{2: true})
	c := NewClient("t", srv.URL, 1000)

	err := c.Broadcast(context.Background(), []int64{1, 2, 3}, "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || !strings.Contains(apiErr.Description, "blocked") {
		t.Fatalf("err = %v, want APIError 403", err)
	}
	if n := len(requests()); n != 3 {
		t.Errorf("requests = %d, want every chat attempted", n)
	}
}

func TestSendMessageSplitsLongText(t *testing.T) {
	srv, requests := fakeAPI(t, nil)
	c := NewClient("t", srv.URL, 0)

	line := strings.Repeat("a", 99) + "\n"
	if err := c.SendMessage(context.Background(), 7, strings.Repeat(line, 50)); err != nil {
		t.Fatal(err)
	}
	got := requests()
	if len(got) != 2 {
		t.Fatalf("messages = %d, want 2", len(got))
	}
	for _, s := range got {
		if len(s.msg.Text) > MaxMessageLength {
			t.Errorf("part of %d bytes", len(s.msg.Text))
		}
	}
}

func TestSendMessageHonoursContext(t *testing.T) {
	srv, requests := fakeAPI(t, nil)
	c := NewClient("t", srv.URL, 0.001)
	ctx := context.Background()
	if err := c.SendMessage(ctx, 1, "first"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := c.SendMessage(ctx, 1, "second"); err == nil {
		t.Fatal("expected error from cancelled wait")
	}
	if n := len(requests()); n != 1 {
		t.Errorf("requests = %d", n)
	}
}

func TestErrorsHideToken(t *testing.T) {
	c := NewClient("secret-token", "http://127.0.0.1:1", 0)
	err := c.SendMessage(context.Background(), 1, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("error leaks token: %v", err)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want []string
	}{
		{"short", "abc", 10, []string{"abc"}},
		{"empty", "", 10, nil},
		{"at newline", "abcd\nefgh", 6, []string{"abcd", "efgh"}},
		{"no newline", "abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"multibyte", "ééé", 3, []string{"é", "é", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("Split = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Split = %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestTestConnection(t *testing.T) {
	srv, requests := fakeAPI(t, nil)
	c := NewClient("123:abc", srv.URL, 0)
	if err := c.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if got := requests(); len(got) != 1 || got[0].path != "/bot123:abc/getMe" {
		t.Errorf("requests = %+v", got)
	}

	bad, _ := fakeAPI(t, map[int64]bool{0: true})
	err := NewClient("123:abc", bad.URL, 0).TestConnection(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want APIError 403", err)
	}
	if strings.Contains(err.Error(), "123:abc") {
		t.Errorf("error leaks token: %v", err)
	}
}
