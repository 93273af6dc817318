package relay_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"feedreader/internal/relay"
)

type hitCounter struct {
	mu   sync.Mutex
	hits []string
}

func (h *hitCounter) add(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits = append(h.hits, name)
}

func (h *hitCounter) list() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.hits...)
}

func relayServer(t *testing.T, name string, hits *hitCounter, handler http.HandlerFunc) relay.Relay {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.add(name)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return relay.Relay{Name: name, Template: server.URL + "/?url={url}"}
}

func TestFetchRawTextFailsOverInOrder(t *testing.T) {
	hits := &hitCounter{}

	relays := []relay.Relay{
		relayServer(t, "status", hits, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}),
		relayServer(t, "empty", hits, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("   \n"))
		}),
		relayServer(t, "ok", hits, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("target=" + r.URL.Query().Get("url")))
		}),
		relayServer(t, "unused", hits, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("should not be reached"))
		}),
	}

	client := relay.New(relay.Config{Relays: relays}, slog.Default())

	body, err := client.FetchRawText(context.Background(), "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("FetchRawText failed: %v", err)
	}

	if body != "target=https://example.com/feed.xml" {
		t.Fatalf("unexpected body: %q", body)
	}

	want := []string{"status", "empty", "ok"}
	got := hits.list()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected relay order: got %v want %v", got, want)
	}
}

func TestFetchRawTextSendsHeaders(t *testing.T) {
	hits := &hitCounter{}

	headers := make(chan http.Header, 1)
	relays := []relay.Relay{
		relayServer(t, "ok", hits, func(w http.ResponseWriter, r *http.Request) {
			headers <- r.Header.Clone()
			_, _ = w.Write([]byte("<rss/>"))
		}),
	}

	client := relay.New(relay.Config{Relays: relays, UserAgent: "test-agent"}, slog.Default())
	if _, err := client.FetchRawText(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("FetchRawText failed: %v", err)
	}

	got := <-headers
	accept, userAgent := got.Get("Accept"), got.Get("User-Agent")

	if accept != relay.AcceptHeader {
		t.Fatalf("unexpected Accept header: %q", accept)
	}

	if userAgent != "test-agent" {
		t.Fatalf("unexpected User-Agent header: %q", userAgent)
	}
}

func TestFetchRawTextTimesOutSlowRelay(t *testing.T) {
	hits := &hitCounter{}

	relays := []relay.Relay{
		relayServer(t, "slow", hits, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
				_, _ = w.Write([]byte("too late"))
			}
		}),
		relayServer(t, "fast", hits, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("fast body"))
		}),
	}

	client := relay.New(relay.Config{Relays: relays, Timeout: 50 * time.Millisecond}, slog.Default())

	start := time.Now()
	body, err := client.FetchRawText(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatalf("FetchRawText failed: %v", err)
	}

	if body != "fast body" {
		t.Fatalf("unexpected body: %q", body)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected slow relay to be abandoned quickly, took %s", elapsed)
	}
}

func TestFetchRawTextAllRelaysFail(t *testing.T) {
	hits := &hitCounter{}

	relays := []relay.Relay{
		relayServer(t, "first", hits, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}),
		relayServer(t, "second", hits, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}),
	}

	client := relay.New(relay.Config{Relays: relays}, slog.Default())

	_, err := client.FetchRawText(context.Background(), "https://example.com/")
	if err == nil {
		t.Fatalf("expected error when all relays fail")
	}

	if !errors.Is(err, relay.ErrAllRelaysFailed) {
		t.Fatalf("expected ErrAllRelaysFailed, got %v", err)
	}

	if !strings.Contains(err.Error(), "relay second") || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected last relay error to be reported, got %v", err)
	}
}

func TestFetchRawTextWithoutRelays(t *testing.T) {
	client := relay.New(relay.Config{}, slog.Default())

	_, err := client.FetchRawText(context.Background(), "https://example.com/")
	if !errors.Is(err, relay.ErrAllRelaysFailed) {
		t.Fatalf("expected ErrAllRelaysFailed, got %v", err)
	}
}

func TestRelayURL(t *testing.T) {
	target := "https://example.com/feed?a=1&b=2"

	escaped := relay.Relay{Template: "https://relay.test/raw?url={url}"}
	if got, want := escaped.URL(target), "https://relay.test/raw?url=https%3A%2F%2Fexample.com%2Ffeed%3Fa%3D1%26b%3D2"; got != want {
		t.Fatalf("unexpected escaped URL: got %q want %q", got, want)
	}

	raw := relay.Relay{Template: "https://relay.test/fetch/{rawurl}"}
	if got, want := raw.URL(target), "https://relay.test/fetch/"+target; got != want {
		t.Fatalf("unexpected raw URL: got %q want %q", got, want)
	}
}

func TestParseTemplates(t *testing.T) {
	relays, err := relay.ParseTemplates(relay.DefaultTemplates)
	if err != nil {
		t.Fatalf("ParseTemplates failed: %v", err)
	}

	if len(relays) != len(relay.DefaultTemplates) {
		t.Fatalf("expected %d relays, got %d", len(relay.DefaultTemplates), len(relays))
	}

	if relays[0].Name != "api.allorigins.win" {
		t.Fatalf("unexpected relay name: %q", relays[0].Name)
	}

	if _, err = relay.ParseTemplates([]string{"https://relay.test/no-placeholder"}); err == nil {
		t.Fatalf("expected error for template without placeholder")
	}

	if _, err = relay.ParseTemplates([]string{"ftp://relay.test/{url}"}); err == nil {
		t.Fatalf("expected error for non-http template")
	}

	if _, err = relay.ParseTemplates([]string{" ", ""}); err == nil {
		t.Fatalf("expected error for empty template list")
	}
}
