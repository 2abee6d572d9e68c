// Package api exposes the admin HTTP surface described in §6: list
// schedules by status, retry all failed schedules, upload a buyers CSV and
// re-plan, plus a WebSocket feed of live schedule transitions. Password
// hashing and JWT issuance are external collaborators; this package assumes
// requests already passed authentication.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/klingon-exchange/splgiver/internal/bootstrap"
	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/internal/planner"
	"github.com/klingon-exchange/splgiver/internal/runner"
	"github.com/klingon-exchange/splgiver/internal/store"
	"github.com/klingon-exchange/splgiver/pkg/logging"
)

// Server is the admin HTTP server.
type Server struct {
	store  *store.Store
	runner *runner.Runner
	hub    *Hub
	log    *logging.Logger

	server   *http.Server
	listener net.Listener
}

// New builds a Server wired to the store and runner bootstrap produced, and
// wires the runner's schedule transitions into the live feed.
func New(s *store.Store, r *runner.Runner) *Server {
	hub := NewHub()
	r.OnScheduleTransition = func(scheduleID int64, status model.ScheduleStatus) {
		eventType := EventScheduleSuccess
		if status == model.ScheduleStatusFailed {
			eventType = EventScheduleFailed
		}
		hub.Broadcast(eventType, map[string]interface{}{"schedule_id": scheduleID, "status": status})
	}

	return &Server{
		store:  s,
		runner: r,
		hub:    hub,
		log:    logging.Default().Component("api"),
	}
}

// Start begins serving on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener

	go s.hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /schedules", s.handleListSchedules)
	mux.HandleFunc("POST /schedules/retry", s.handleRetryFailed)
	mux.HandleFunc("POST /buyers/upload", s.handleImportBuyers)
	mux.HandleFunc("GET /ws", s.hub.ServeHTTP)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin api server error", "error", err)
		}
	}()

	s.log.Info("admin api started", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleListSchedules returns schedules filtered by ?status=pending|success|failed.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(model.ScheduleStatusPending)
	}
	if !model.ValidScheduleStatus(status) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid status %q", status))
		return
	}

	rows, err := s.store.GetSchedulesByStatus(model.ScheduleStatus(status))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleRetryFailed re-invokes the schedule state machine for every failed row.
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	retried, err := s.runner.RetryFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"retried": retried})
}

// handleImportBuyers accepts a CSV upload (wallet,paid_lamports,group_id,
// and optionally received_spl_lamports,received_percent,pending_spl_lamports,
// error), insert-ignores each row — restoring any resume state it carries —
// and re-runs the Planner so new rows appear.
func (s *Server) handleImportBuyers(w http.ResponseWriter, r *http.Request) {
	reader := csv.NewReader(r.Body)
	records, err := reader.ReadAll()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse csv: %w", err))
		return
	}
	if len(records) < 2 {
		writeJSON(w, http.StatusOK, map[string]int{"imported": 0, "planned": 0})
		return
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	groups, err := s.store.GetAllGroups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	groupByID := make(map[int64]*model.Group, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}

	imported := 0
	for _, row := range records[1:] {
		b, err := bootstrap.ParseBuyerRow(col, row, groupByID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		inserted, err := s.store.SaveBuyer(b)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if inserted {
			imported++
		}
	}

	planned, err := planner.Run(s.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"imported": imported, "planned": planned})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
