// Package httpapi is the public HTTP surface: a JSON snapshot route, an
// SSE change stream, and a ping/health route, routed with gorilla/mux so
// the auth gate chains onto protected routes as middleware.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/nwws-alert/ingest/internal/auth"
	"github.com/nwws-alert/ingest/internal/bus"
	"github.com/nwws-alert/ingest/internal/model"
	"github.com/nwws-alert/ingest/internal/store"
	"github.com/rs/zerolog"
)

const keepAliveInterval = 30 * time.Second

// Server wires the store, dispatch bus, and auth gate into a router.
type Server struct {
	store    *store.Store
	dispatch *bus.Bus
	gate     *auth.Gate
	log      zerolog.Logger
	router   *mux.Router
}

// New builds the Server and registers all routes.
func New(st *store.Store, dispatch *bus.Bus, gate *auth.Gate, log zerolog.Logger) *Server {
	s := &Server{store: st, dispatch: dispatch, gate: gate, log: log, router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

// Router returns the underlying router so main can wrap it in an
// http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(s.recoverMiddleware)
	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet, http.MethodOptions)

	protected := s.router.NewRoute().Subrouter()
	protected.Use(s.gate.CORS, s.gate.Middleware)
	protected.HandleFunc("/", s.handleRoot).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/alerts/subscribe", s.handleSubscribe).Methods(http.MethodGet, http.MethodOptions)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleNotFound)
}

type statusBody struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handlePing serves GET /ping, unauthenticated.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusBody{Status: "OK"})
}

// handleRoot serves GET /, authenticated.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusBody{Status: "AUTHORIZED"})
}

type alertsBody struct {
	Status string        `json:"status"`
	Count  int           `json:"count"`
	Alerts []model.Alert `json:"alerts"`
}

// handleAlerts serves GET /alerts: a snapshot of the store.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, alertsBody{Status: "OK", Count: len(snap), Alerts: snap})
}

// handleSubscribe serves GET /alerts/subscribe: an SSE stream of store
// change events. The subscriber is removed from the bus and
// its keep-alive timer stopped the moment the client disconnects.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: "ERROR", Message: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := s.dispatch.Subscribe()
	defer cancel()

	_, _ = w.Write([]byte("data: {\"status\":\"connected\"}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt.Alert)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: " + string(evt.Type) + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type errorBody struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ExtraInfo string `json:"extra_info,omitempty"`
}

// handleNotFound serves the unknown-route response.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Status: "ERROR", Message: "Not found"})
}

// recoverMiddleware keeps the listener alive across handler bugs: an unhandled
// panic in any handler becomes a 500 with the error string carried in
// extra_info, logged with a stack trace, rather than crashing the listener.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).
					Str("stack", string(debug.Stack())).Msg("unhandled panic in HTTP handler")
				writeJSON(w, http.StatusInternalServerError, errorBody{
					Status:    "ERROR",
					Message:   "internal server error",
					ExtraInfo: fmt.Sprint(rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
