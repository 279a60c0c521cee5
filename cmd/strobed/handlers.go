package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/go-mizu/strobe/internal/accum"
	"github.com/go-mizu/strobe/internal/indexview"
	"github.com/go-mizu/strobe/internal/ingest"
	"github.com/go-mizu/strobe/internal/query"
	"github.com/go-mizu/strobe/internal/shard"
	"github.com/go-mizu/strobe/internal/wire"
	"github.com/go-mizu/strobe/middlewares/metrics"
)

// protoTag is the transport tag returned by GET /proto (spec.md §6.4).
const protoTag = "strobe-wire/1"

const maxIngestBody = 64 << 20

// handlers wires the shard's ingest queue and published view to the HTTP
// surface (spec.md §6.4).
type handlers struct {
	shard *shard.Shard
	queue *ingest.Queue
	log   *slog.Logger
	pool  *query.Pool
}

func newHandlers(sh *shard.Shard, q *ingest.Queue, log *slog.Logger) *handlers {
	return &handlers{shard: sh, queue: q, log: log, pool: query.NewPool(accum.DefaultCapacity)}
}

func (h *handlers) register(mux *http.ServeMux, m *metrics.Metrics) {
	mux.HandleFunc("GET /proto", h.handleProto)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /metrics", m.Prometheus())
	mux.HandleFunc("POST /ingest.pack", h.handleIngest(ingest.ParsePack))
	mux.HandleFunc("POST /ingest.lines", h.handleIngestLegacy(func(b []byte) []wire.Record { return ingest.ParseLines(b) }))
	mux.HandleFunc("POST /ingest.bin", h.handleIngestLegacy(func(b []byte) []wire.Record { return ingest.ParseBin(b) }))
	mux.HandleFunc("POST /search", h.handleSearch)
}

// optionsPreflight answers every OPTIONS request that reaches it with 204
// and permissive CORS headers, whether or not an Origin header is present;
// the cors middleware only answers preflights that carry one (spec.md §6.4).
func optionsPreflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *handlers) handleProto(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, protoTag)
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	v := h.shard.Published().Load()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "segments=%d\ndocs_total=%d\n", v.SegmentCount(), v.TotalDocs())
}

// handleIngest serves POST /ingest.pack: a malformed body is a 400 (spec.md
// §7 "Malformed request"); each parsed record is admitted to the shard's
// queue independently, so one backpressure rejection doesn't fail the
// whole batch.
func (h *handlers) handleIngest(parse func([]byte) ([]wire.Record, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
		if err != nil {
			http.Error(w, "body read error", http.StatusBadRequest)
			return
		}

		records, err := parse(body)
		if err != nil {
			h.log.Warn("malformed ingest request", slog.String("request_id", reqID), slog.Any("error", err))
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}

		h.admit(w, r, reqID, records)
	}
}

// handleIngestLegacy serves the tolerant text/naive-binary formats, which
// never fail parsing outright (spec.md §6.4 "equivalent modulo payload
// encoding").
func (h *handlers) handleIngestLegacy(parse func([]byte) []wire.Record) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
		if err != nil {
			http.Error(w, "body read error", http.StatusBadRequest)
			return
		}
		h.admit(w, r, reqID, parse(body))
	}
}

func (h *handlers) admit(w http.ResponseWriter, r *http.Request, reqID string, records []wire.Record) {
	admitted := 0
	for _, rec := range records {
		if err := h.queue.Submit(r.Context(), rec); err != nil {
			h.log.Warn("ingest submit rejected", slog.String("request_id", reqID), slog.Any("error", err))
			continue
		}
		admitted++
	}

	w.Header().Set("X-Ingested", fmt.Sprintf("%d", admitted))
	w.Header().Set("X-Request-Id", reqID)
	w.WriteHeader(http.StatusAccepted)
}

// handleSearch serves POST /search (spec.md §6.1-6.2): a short/malformed
// request is a 400, otherwise the response is always a successful,
// possibly-empty hit list (spec.md §7 "Scoring with no candidates").
func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		http.Error(w, "body read error", http.StatusBadRequest)
		return
	}

	req, err := wire.DecodeSearchRequest(body)
	if err != nil {
		http.Error(w, "malformed search request", http.StatusBadRequest)
		return
	}

	view := h.shard.Published().Load()

	scratch := h.pool.Get()
	defer h.pool.Put(scratch)

	hits := view.Search(req, scratch)

	withMeta := req.Flags&query.FlagWithMeta != 0
	var lookup wire.MetaLookup
	if withMeta {
		lookup = func(seg int, row uint32) wire.HitMeta { return segmentMeta(view, seg, row) }
	}

	resp := wire.EncodeSearchResponse(hits, withMeta, lookup)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func segmentMeta(v *indexview.View, seg int, row uint32) wire.HitMeta {
	s := v.Segment(seg)
	m := s.Meta(row)
	return wire.HitMeta{Title: m.Title, Author: m.Author, Genres: m.Genres, URL: m.URL, URI: m.URI}
}
