// Package api serves the operator HTTP API: health, current state, recent
// decisions, the trade counter, an out-of-band analyze trigger and the live
// decision stream.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/pquerna/otp/totp"

	"fxanalyst/internal/analyst"
	"fxanalyst/internal/store/sqlite"
)

// TOTPHeader carries the one-time code for guarded endpoints.
const TOTPHeader = "X-TOTP"

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
)

// Deps are the collaborators of the router. Journal, Health and Stream may
// be nil; the related endpoints then degrade or are not registered.
type Deps struct {
	Service *analyst.Service
	Journal *sqlite.DB
	Health  http.Handler
	Stream  http.Handler
	// TOTPSecret guards POST /api/v1/analyze. Empty disables the endpoint.
	TOTPSecret string
	Now        func() time.Time
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TOTPHeader)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// NewRouter sets up the HTTP routes.
func NewRouter(d Deps) *http.ServeMux {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{Deps: d}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.health)
	mux.HandleFunc("GET /api/v1/state", h.state)
	mux.HandleFunc("GET /api/v1/signals", h.signals)
	mux.HandleFunc("GET /api/v1/counter", h.counter)
	mux.HandleFunc("POST /api/v1/analyze", h.analyze)
	mux.HandleFunc("OPTIONS /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})
	if d.Stream != nil {
		mux.Handle("GET /api/v1/stream", d.Stream)
	}
	return mux
}

type handlers struct {
	Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	SetCORS(w)
	h.Health.ServeHTTP(w, r)
}

type stateResponse struct {
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval"`
	Latest   *analyst.Record `json:"latest"`
	Counter  counterResponse `json:"counter"`
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	cfg := h.Service.Config()
	resp := stateResponse{
		Symbol:   cfg.Symbol,
		Interval: cfg.Lower.String(),
		Counter:  h.counterState(r.Context()),
	}
	if rec, ok := h.Service.Latest(); ok {
		resp.Latest = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// signals returns the newest journal records, or only the in-memory latest
// record when no journal is configured.
func (h *handlers) signals(w http.ResponseWriter, r *http.Request) {
	limit := defaultSignalLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSignalLimit)
	}

	if h.Journal == nil {
		out := []analyst.Record{}
		if rec, ok := h.Service.Latest(); ok {
			out = append(out, rec)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	entries, err := h.Journal.RecentDecisions(r.Context(), symbol, limit)
	if err != nil {
		log.Printf("[api] recent decisions: %v", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, json.RawMessage(e.Payload))
	}
	writeJSON(w, http.StatusOK, out)
}

type counterResponse struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Max       int    `json:"max"`
	Remaining int    `json:"remaining"`
}

func (h *handlers) counterState(ctx context.Context) counterResponse {
	v := h.Service.Validator()
	st := v.Counter().Today(ctx)
	limit := v.Config().MaxTradesPerDay
	return counterResponse{
		Date:      st.Date,
		Count:     st.Count,
		Max:       limit,
		Remaining: max(limit-st.Count, 0),
	}
}

func (h *handlers) counter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.counterState(r.Context()))
}

// analyze runs a cycle outside the schedule. The optional at query
// parameter (RFC3339) evaluates as of that time.
func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	if h.TOTPSecret == "" {
		writeError(w, http.StatusForbidden, "analyze endpoint disabled")
		return
	}
	if code := r.Header.Get(TOTPHeader); code == "" || !totp.Validate(code, h.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "invalid one-time code")
		return
	}

	at := h.Now()
	if s := r.URL.Query().Get("at"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be RFC3339")
			return
		}
		at = t
	}

	log.Printf("[api] out-of-band analyze at %s", at.UTC().Format(time.RFC3339))
	rec := h.Service.Analyze(r.Context(), at)
	writeJSON(w, http.StatusOK, rec)
}
