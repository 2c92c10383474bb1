package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Billy-Davies-2/dartsync/internal/clickhouse"
	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/medley"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/sensor"
	"github.com/Billy-Davies-2/dartsync/internal/session"
)

// Match is the part of a session the HTTP surface drives.
type Match interface {
	Snapshot() session.State
	Healthy() bool
	ChooseMode(ctx context.Context, mode medley.ChoiceMode) error
	SelectGame(ctx context.Context, v models.Variant) error
	Leave(ctx context.Context) error
	Subscribe() chan *session.State
	Unsubscribe(ch chan *session.State)
}

// Simulator feeds manual darts through the board input path.
type Simulator interface {
	Throw(ctx context.Context, segment string) error
	EndTurn(ctx context.Context) error
}

// Stats serves long-run player averages.
type Stats interface {
	PlayerAverages(ctx context.Context, playerID string) (clickhouse.Averages, error)
}

// APIHandlers contains all API handler methods
type APIHandlers struct {
	match Match
	sim   Simulator
	stats Stats
}

// NewAPIHandlers creates a new API handlers instance. sim and stats may be nil.
func NewAPIHandlers(match Match, sim Simulator, stats Stats) *APIHandlers {
	return &APIHandlers{
		match: match,
		sim:   sim,
		stats: stats,
	}
}

// Router mounts the match routes, plus the simulator routes when dev is set.
func (h *APIHandlers) Router(dev bool) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Readyz).Methods(http.MethodGet)

	m := r.PathPrefix("/match").Subrouter()
	m.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	m.HandleFunc("/events", h.EventsSSE).Methods(http.MethodGet)
	m.HandleFunc("/choice/{mode}", h.ChooseMode).Methods(http.MethodPost)
	m.HandleFunc("/select/{variant}", h.SelectGame).Methods(http.MethodPost)
	m.HandleFunc("/leave", h.Leave).Methods(http.MethodPost)

	if h.stats != nil {
		r.HandleFunc("/players/{id}/averages", h.PlayerAverages).Methods(http.MethodGet)
	}

	if dev && h.sim != nil {
		d := r.PathPrefix("/dev").Subrouter()
		d.HandleFunc("/throw/{segment}", h.DevThrow).Methods(http.MethodPost)
		d.HandleFunc("/end-turn", h.DevEndTurn).Methods(http.MethodPost)
		logger.Info("Dev simulator routes enabled")
	}
	// Outside the router so OPTIONS preflights get CORS headers too.
	return corsMiddleware(r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// statusFor maps command errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, medley.ErrInvalidMode),
		errors.Is(err, medley.ErrNotEligible),
		errors.Is(err, dart.ErrBadSegment):
		return http.StatusBadRequest
	case errors.Is(err, medley.ErrWrongPhase),
		errors.Is(err, session.ErrNotYourChoice),
		errors.Is(err, session.ErrMatchOver):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed),
		errors.Is(err, sensor.ErrFeedStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// Healthz reports that the process is up
func (h *APIHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w)
}

// Readyz reports whether the match is live with the peer reachable
func (h *APIHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if !h.match.Healthy() {
		http.Error(w, "match not live", http.StatusServiceUnavailable)
		return
	}
	writeOK(w)
}

// GetState returns the current match state
func (h *APIHandlers) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.match.Snapshot())
}

// ChooseMode answers the choice-leg question for the cork winner
func (h *APIHandlers) ChooseMode(w http.ResponseWriter, r *http.Request) {
	mode, err := medley.ParseChoiceMode(mux.Vars(r)["mode"])
	if err != nil {
		fail(w, err)
		return
	}
	logger.Info("Choosing leg mode", "mode", mode)
	if err := h.match.ChooseMode(r.Context(), mode); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

// SelectGame picks the variant of a choice leg
func (h *APIHandlers) SelectGame(w http.ResponseWriter, r *http.Request) {
	v, err := models.ParseVariant(mux.Vars(r)["variant"])
	if err != nil || v == models.VariantChoice {
		http.Error(w, fmt.Sprintf("invalid variant %q", mux.Vars(r)["variant"]), http.StatusBadRequest)
		return
	}
	logger.Info("Selecting game", "variant", v)
	if err := h.match.SelectGame(r.Context(), v); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

// Leave abandons the match
func (h *APIHandlers) Leave(w http.ResponseWriter, r *http.Request) {
	logger.Info("Leaving match")
	if err := h.match.Leave(r.Context()); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

// PlayerAverages returns a player's long-run PPR and MPR
func (h *APIHandlers) PlayerAverages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	avg, err := h.stats.PlayerAverages(ctx, id)
	if err != nil {
		logger.Error("Failed to load player averages", "player_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, avg)
}

// DevThrow injects a simulated dart
func (h *APIHandlers) DevThrow(w http.ResponseWriter, r *http.Request) {
	seg := mux.Vars(r)["segment"]
	if _, err := dart.Parse(seg); err != nil {
		fail(w, err)
		return
	}
	logger.Debug("Simulated dart", "segment", seg)
	if err := h.sim.Throw(r.Context(), seg); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

// DevEndTurn presses the simulated end-turn button
func (h *APIHandlers) DevEndTurn(w http.ResponseWriter, r *http.Request) {
	if err := h.sim.EndTurn(r.Context()); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

// EventsSSE streams match states as Server-Sent Events
func (h *APIHandlers) EventsSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	states := h.match.Subscribe()
	defer h.match.Unsubscribe(states)

	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	initial, _ := json.Marshal(h.match.Snapshot())
	fmt.Fprintf(w, "data: %s\n\n", initial)
	flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return
			}
			data, _ := json.Marshal(st)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flush()
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected")
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush()
		}
	}
}
