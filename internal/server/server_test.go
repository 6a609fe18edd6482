package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/provider"
	"github.com/debemdeboas/scratchpad/internal/repository"
	"github.com/debemdeboas/scratchpad/internal/scratchpad"
	"github.com/debemdeboas/scratchpad/internal/sse"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.ServerConfig{MaxContentBytes: 64, CORSOrigins: []string{"https://example.com"}}
	s := New(repository.NewMemoryStore(), sse.NewClients(), cfg, zerolog.New(io.Discard))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func decodeDocument(t *testing.T, body string) model.DocumentResponse {
	t.Helper()
	var doc model.DocumentResponse
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		t.Fatalf("Invalid document body %q: %v", body, err)
	}
	return doc
}

func TestScratchpadAPI(t *testing.T) {
	_, srv := newTestServer(t)

	t.Run("Unknown document is empty at version 0", func(t *testing.T) {
		resp, body := do(t, srv, http.MethodGet, "/api/scratchpads/main", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
		}
		doc := decodeDocument(t, body)
		if doc.ID != "main" || doc.Version != 0 || doc.Content != "" {
			t.Errorf("Unexpected document %+v", doc)
		}
		if resp.Header.Get("X-Frame-Options") != "deny" {
			t.Error("Expected security headers")
		}
	})

	t.Run("Put replaces and appends", func(t *testing.T) {
		resp, body := do(t, srv, http.MethodPut, "/api/scratchpads/main", `{"content":"# Scratchpad"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
		}
		if doc := decodeDocument(t, body); doc.Version != 1 || doc.Content != "# Scratchpad" {
			t.Errorf("Unexpected document %+v", doc)
		}

		_, body = do(t, srv, http.MethodPut, "/api/scratchpads/main", `{"content":"Buy milk","mode":"append"}`)
		if doc := decodeDocument(t, body); doc.Version != 2 || doc.Content != "# Scratchpad\nBuy milk" {
			t.Errorf("Unexpected document %+v", doc)
		}

		resp, body = do(t, srv, http.MethodGet, "/api/scratchpads/main", "")
		doc := decodeDocument(t, body)
		if doc.Version != 2 || doc.ContentHash == "" {
			t.Errorf("Unexpected document %+v", doc)
		}
		if resp.Header.Get("ETag") != `"`+doc.ContentHash+`"` {
			t.Errorf("Expected ETag of content hash, got %q", resp.Header.Get("ETag"))
		}
	})

	t.Run("List returns versions", func(t *testing.T) {
		resp, body := do(t, srv, http.MethodGet, "/api/scratchpads", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		var infos []model.DocumentInfo
		if err := json.Unmarshal([]byte(body), &infos); err != nil {
			t.Fatal(err)
		}
		if len(infos) != 1 || infos[0].ID != "main" || infos[0].Version != 2 {
			t.Errorf("Unexpected listing %+v", infos)
		}
	})

	testCases := []struct {
		name     string
		method   string
		path     string
		body     string
		expected int
	}{
		{"Invalid id", http.MethodGet, "/api/scratchpads/-bad", "", http.StatusBadRequest},
		{"Invalid JSON", http.MethodPut, "/api/scratchpads/main", `{"content":`, http.StatusBadRequest},
		{"Unknown mode", http.MethodPut, "/api/scratchpads/main", `{"content":"x","mode":"merge"}`, http.StatusBadRequest},
		{"Content over limit", http.MethodPut, "/api/scratchpads/main", `{"content":"` + strings.Repeat("a", 65) + `"}`, http.StatusBadRequest},
		{"Body over limit", http.MethodPut, "/api/scratchpads/main", `{"content":"` + strings.Repeat("a", 4096) + `"}`, http.StatusRequestEntityTooLarge},
		{"Method not allowed", http.MethodDelete, "/api/scratchpads/main", "", http.StatusMethodNotAllowed},
		{"SSE without doc", http.MethodGet, "/sse", "", http.StatusBadRequest},
		{"Health", http.MethodGet, "/healthz", "", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, srv, tc.method, tc.path, tc.body)
			if resp.StatusCode != tc.expected {
				t.Errorf("Expected %d, got %d: %s", tc.expected, resp.StatusCode, body)
			}
		})
	}

	t.Run("Rejected writes do not change the document", func(t *testing.T) {
		_, body := do(t, srv, http.MethodGet, "/api/scratchpads/main", "")
		if doc := decodeDocument(t, body); doc.Version != 2 {
			t.Errorf("Expected version 2, got %d", doc.Version)
		}
	})
}

func TestCORS(t *testing.T) {
	_, srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/scratchpads/main", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Expected allowed origin, got %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, srv.URL+"/api/scratchpads/main", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no allowed origin, got %q", got)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEvents(t *testing.T) {
	s, srv := newTestServer(t)
	ctx := context.Background()

	if _, err := s.store.Put(ctx, "main", []byte("hello"), model.WriteReplace); err != nil {
		t.Fatal(err)
	}

	versions := make(chan model.Version, 8)
	sub := sse.NewSubscriber(srv.URL, "main", func(v model.Version) { versions <- v },
		sse.WithHTTPClient(srv.Client()), sse.WithReconnectDelay(10*time.Millisecond))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sub.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	expect := func(expected model.Version) {
		t.Helper()
		select {
		case v := <-versions:
			if v != expected {
				t.Errorf("Expected version %d, got %d", expected, v)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for version %d", expected)
		}
	}

	// Current version on connect.
	expect(1)
	waitFor(t, "client registration", func() bool { return s.clients.Count("main") == 1 })

	do(t, srv, http.MethodPut, "/api/scratchpads/other", `{"content":"x"}`)
	do(t, srv, http.MethodPut, "/api/scratchpads/main", `{"content":"world"}`)
	expect(2)

	s.NotifyVersion("main", 0)
	expect(0)
}

func TestControllersSyncThroughServer(t *testing.T) {
	s, srv := newTestServer(t)
	ctx := context.Background()
	if _, err := s.store.Put(ctx, "shared", []byte("# Scratchpad"), model.WriteReplace); err != nil {
		t.Fatal(err)
	}

	newController := func() *scratchpad.Controller {
		return scratchpad.New(provider.NewHTTP(srv.URL, "shared", srv.Client()))
	}

	a := newController()
	b := newController()
	if _, err := a.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Load(ctx); err != nil {
		t.Fatal(err)
	}

	sub := sse.NewSubscriber(srv.URL, "shared", func(v model.Version) {
		b.OnExternalVersionChanged(ctx, v)
	}, sse.WithHTTPClient(srv.Client()), sse.WithReconnectDelay(10*time.Millisecond))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sub.Run(runCtx) }()

	a.OnUserEdit("Buy milk")
	if err := a.Flush(ctx, true); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "remote text", func() bool { return b.Text() == "Buy milk" })
	if snap := b.Snapshot(); snap.Heading != scratchpad.DefaultHeadings[0] || snap.HasUserEdits {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	cancel()
	<-done
	if err := a.Close(ctx); err != nil {
		t.Error(err)
	}
	if err := b.Close(ctx); err != nil {
		t.Error(err)
	}
}
