package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvbatch/internal/core"
	"github.com/JonMunkholm/csvbatch/internal/logging"
	"github.com/JonMunkholm/csvbatch/internal/web/views"
)

// TicketHeader may carry the credential instead of the request body.
const TicketHeader = "X-Ticket"

const (
	defaultHistoryLimit = 20
	maxStartRunBody     = 1 << 20
)

// StartRunRequest is the body of POST /api/runs.
type StartRunRequest struct {
	Action   string   `json:"action"`
	Files    []string `json:"files"`
	StartRow int      `json:"start_row"`
	LogDir   string   `json:"log_dir"`
	Ticket   string   `json:"ticket"`
}

// StartRunResponse is returned when a run was accepted.
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// CurrentRunResponse is the body of GET /api/runs/current.
type CurrentRunResponse struct {
	Running  bool                  `json:"running"`
	Progress core.ProgressSnapshot `json:"progress"`
	Last     *core.RunSummary      `json:"last,omitempty"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	runs, err := s.listRuns(r, defaultHistoryLimit)
	if err != nil {
		logging.FromContext(r.Context()).Warn("dashboard: history unavailable", "error", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	views.Dashboard(s.service.Progress(), s.service.Actions(), runs, s.service.LogDir()).Render(r.Context(), w)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Actions())
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body StartRunRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxStartRunBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}

	ticket := body.Ticket
	if ticket == "" {
		ticket = r.Header.Get(TicketHeader)
	}
	runID, err := s.service.StartRun(WithRequestMetadata(r.Context(), r), core.RunRequest{
		Action:     core.Action(body.Action),
		Files:      body.Files,
		StartRow:   body.StartRow,
		Credential: core.Credential{Ticket: ticket},
		LogDir:     body.LogDir,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StartRunResponse{RunID: runID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.listRuns(r, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		views.RunHistory(runs, s.service.LogDir()).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) listRuns(r *http.Request, limit int) ([]core.RunSummary, error) {
	if s.history != nil {
		runs, err := s.history.List(r.Context(), limit)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []core.RunSummary{}
		}
		return runs, nil
	}
	if last, ok := s.service.LastSummary(); ok {
		return []core.RunSummary{last}, nil
	}
	return []core.RunSummary{}, nil
}

func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
	resp := CurrentRunResponse{
		Running:  s.service.Running(),
		Progress: s.service.Progress(),
	}
	if last, ok := s.service.LastSummary(); ok && !resp.Running {
		resp.Last = &last
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		views.ProgressPanel(resp.Progress).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelRun(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleResetRun(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reset(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Progress())
}

// handleRunEvents streams progress snapshots of the active run as
// Server-Sent Events. Without an active run the current snapshot is sent
// once, followed by the complete event.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	updates, err := s.service.SubscribeProgress()
	if err != nil {
		w.WriteHeader(http.StatusOK)
		writeEvent(w, 1, "progress", s.service.Progress())
		fmt.Fprint(w, "event: complete\ndata: {}\n\n")
		rc.Flush()
		return
	}
	w.WriteHeader(http.StatusOK)

	id := 0
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				rc.Flush()
				return
			}
			id++
			writeEvent(w, id, "progress", snap)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w io.Writer, id int, event string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
}
