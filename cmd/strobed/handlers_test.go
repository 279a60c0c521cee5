package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-mizu/strobe/internal/ingest"
	"github.com/go-mizu/strobe/internal/qgram"
	"github.com/go-mizu/strobe/internal/query"
	"github.com/go-mizu/strobe/internal/shard"
	"github.com/go-mizu/strobe/internal/wire"
	"github.com/go-mizu/strobe/middlewares/metrics"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestHandlers(t *testing.T) (*handlers, *shard.Shard) {
	t.Helper()
	dir := t.TempDir()
	q := ingest.NewQueue(1024, 1_000_000, 1000, 0)
	sh, err := shard.Open(shard.Config{
		ShardID:       0,
		DataDir:       dir,
		FlushDocs:     1,
		ReplaySegDocs: 100,
	}, testLogger(), q)
	if err != nil {
		t.Fatalf("shard.Open: %v", err)
	}
	t.Cleanup(func() { _ = sh.Close() })
	return newHandlers(sh, q, testLogger()), sh
}

func TestHandleProto(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/proto", nil)
	rec := httptest.NewRecorder()
	h.handleProto(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != protoTag {
		t.Fatalf("body = %q, want %q", rec.Body.String(), protoTag)
	}
}

func TestHandleStatsEmpty(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.handleStats(rec, req)

	if !strings.Contains(rec.Body.String(), "segments=0") {
		t.Fatalf("expected segments=0, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "docs_total=0") {
		t.Fatalf("expected docs_total=0, got %q", rec.Body.String())
	}
}

func TestHandleIngestPackAdmitsRecord(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := wire.Record{ID: wire.AssignID, Search: "alpha beta"}
	body := wire.AppendRecord(nil, rec)

	req := httptest.NewRequest(http.MethodPost, "/ingest.pack", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	h.handleIngest(ingest.ParsePack)(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if w.Header().Get("X-Ingested") != "1" {
		t.Fatalf("X-Ingested = %q, want 1", w.Header().Get("X-Ingested"))
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id header")
	}
}

func TestHandleIngestPackRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/ingest.pack", strings.NewReader("not a valid pack"))
	w := httptest.NewRecorder()
	h.handleIngest(ingest.ParsePack)(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleSearchMalformedRequest(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("short"))
	rec := httptest.NewRecorder()
	h.handleSearch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearchEmptyIndexReturnsEmptyHits(t *testing.T) {
	h, _ := newTestHandlers(t)

	sigReq := query.Request{K: 5, Sig: qgram.Sig256{}}
	body := wire.EncodeSearchRequest(sigReq)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	h.handleSearch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	hits, err := wire.DecodeSearchResponse(rec.Body.Bytes(), false)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits on empty index, got %d", len(hits))
	}
}

func TestOptionsPreflightAnswersDirectly(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	handler := optionsPreflight(next)

	req := httptest.NewRequest(http.MethodOptions, "/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatal("expected downstream handler not to be called for OPTIONS")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected permissive CORS origin header")
	}
}

func TestRegisterWiresAllEndpoints(t *testing.T) {
	h, _ := newTestHandlers(t)
	m, _ := metrics.New()
	mux := http.NewServeMux()
	h.register(mux, m)

	for _, path := range []string{"/proto", "/stats", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code == http.StatusNotFound {
			t.Errorf("GET %s: got 404, expected a registered route", path)
		}
	}
}
