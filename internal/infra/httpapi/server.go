// internal/infra/httpapi/server.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nse_alert_bot/internal/domain/announcement"
	idb "nse_alert_bot/internal/infra/database"
	"nse_alert_bot/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

// Server exposes the operator surface over HTTP: schedule status, manual
// trigger, liveness. It only ever reads snapshots and calls TriggerNow; it
// never reaches into a running cycle.
type Server struct {
	srv    *http.Server
	sched  *scheduler.PollScheduler
	repo   announcement.Repository
	logger *logrus.Entry
}

func NewServer(addr string, sched *scheduler.PollScheduler, repo announcement.Repository, logger *logrus.Entry) *Server {
	s := &Server{
		sched:  sched,
		repo:   repo,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/fetch-now", s.handleFetchNow)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute, // fetch-now waits out a full cycle
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.WithField("addr", s.srv.Addr).Info("Operator HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Operator HTTP server failed")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	Status             string              `json:"status"`
	IntervalSeconds    int                 `json:"fetch_interval_seconds"`
	LastCycleAt        *time.Time          `json:"last_cycle_at,omitempty"`
	LastCycleError     string              `json:"last_cycle_error,omitempty"`
	CyclesRun          int64               `json:"cycles_run"`
	NotificationsSent  int64               `json:"notifications_sent"`
	TotalAnnouncements int64               `json:"total_announcements"`
	Latest             *latestAnnouncement `json:"latest_announcement,omitempty"`
}

type latestAnnouncement struct {
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name,omitempty"`
	Title       string    `json:"title"`
	Link        string    `json:"link,omitempty"`
	AnnouncedAt time.Time `json:"announced_at"`
}

// handleStatus reports the last known-good state. It stays accurate even
// while a cycle is actively failing: everything here comes from the
// scheduler snapshot and the store, not from the cycle itself.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.sched.Snapshot()
	resp := statusResponse{
		Status:            "stopped",
		IntervalSeconds:   int(snap.CurrentInterval / time.Second),
		LastCycleError:    snap.LastCycleError,
		CyclesRun:         snap.CyclesRun,
		NotificationsSent: snap.NotificationsSent,
	}
	if snap.Running {
		resp.Status = "running"
	}
	if !snap.LastCycleAt.IsZero() {
		t := snap.LastCycleAt
		resp.LastCycleAt = &t
	}

	ctx := r.Context()
	if count, err := s.repo.Count(ctx); err != nil {
		s.logger.WithError(err).Warn("Could not count announcements for status")
	} else {
		resp.TotalAnnouncements = count
	}
	if latest, err := s.repo.Latest(ctx); err != nil {
		if !errors.Is(err, idb.ErrAnnouncementNotFound) {
			s.logger.WithError(err).Warn("Could not load latest announcement for status")
		}
	} else {
		resp.Latest = &latestAnnouncement{
			Symbol:      latest.Symbol,
			CompanyName: latest.CompanyName.String,
			Title:       latest.Title,
			Link:        latest.Link.String,
			AnnouncedAt: latest.AnnouncedAt,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type fetchNowResponse struct {
	Status           string `json:"status"`
	NewAnnouncements int    `json:"new_announcements"`
	Duplicates       int    `json:"duplicates"`
	Skipped          int    `json:"skipped"`
	Error            string `json:"error,omitempty"`
}

// handleFetchNow runs one out-of-band ingest cycle. A concurrent cycle
// yields 409 rather than queueing a second one.
func (s *Server) handleFetchNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := s.sched.TriggerNow(r.Context())
	if errors.Is(err, scheduler.ErrCycleInProgress) {
		writeJSON(w, http.StatusConflict, fetchNowResponse{Status: "already_in_progress"})
		return
	}

	resp := fetchNowResponse{Status: "success"}
	code := http.StatusOK
	if res != nil {
		resp.NewAnnouncements = len(res.NewRecords)
		resp.Duplicates = res.Duplicates
		resp.Skipped = res.Skipped
	}
	if err != nil {
		// Partial results (inserts made before a store abort) are still
		// reported alongside the error.
		resp.Status = "error"
		resp.Error = err.Error()
		code = http.StatusBadGateway
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
