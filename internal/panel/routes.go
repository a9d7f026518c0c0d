package panel

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/andresmejia3/rollcall/internal/attendance"
	"github.com/andresmejia3/rollcall/internal/enroll"
	"github.com/go-chi/chi/v5"
)

type statusResponse struct {
	Attendance *attendanceStatus `json:"attendance,omitempty"`
	Enroll     *enrollStatus     `json:"enroll,omitempty"`
}

type attendanceStatus struct {
	Scanning bool   `json:"scanning"`
	Session  string `json:"session,omitempty"`
	Ticks    int64  `json:"ticks"`
	Skipped  int64  `json:"skipped"`
	Entries  int    `json:"entries"`
}

type enrollStatus struct {
	Gate   string         `json:"gate"`
	Status *enroll.Status `json:"status,omitempty"`
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/log", s.handleLog)
		r.Get("/recognized", s.handleRecognized)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse

	if l := s.views.Loop; l != nil {
		ticks, skipped := l.Stats()
		resp.Attendance = &attendanceStatus{
			Scanning: l.Scanning(),
			Session:  l.Session(),
			Ticks:    ticks,
			Skipped:  skipped,
			Entries:  l.Board().Len(),
		}
	}

	if p := s.views.Pipeline; p != nil {
		es := &enrollStatus{Gate: p.GateState().String()}
		if s.views.Status != nil {
			if last, ok := s.views.Status.Last(); ok {
				es.Status = &last
			}
		}
		resp.Enroll = es
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.views.Loop == nil {
		respondError(w, http.StatusNotFound, "no attendance session on this kiosk")
		return
	}

	entries := s.views.Loop.Board().Entries()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}
	if entries == nil {
		entries = []attendance.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRecognized(w http.ResponseWriter, r *http.Request) {
	if s.views.Loop == nil {
		respondError(w, http.StatusNotFound, "no attendance session on this kiosk")
		return
	}
	sum, ok := s.views.Loop.Board().Summary()
	if !ok {
		respondError(w, http.StatusNotFound, "nobody recognized yet")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
