package web

// errors.go turns handler errors into responses. The technical error is
// logged with the request id; the client gets the mapped user message and
// support code, as JSON for API calls and as an HTML alert otherwise.

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/JonMunkholm/csvbatch/internal/core"
	"github.com/JonMunkholm/csvbatch/internal/logging"
	"github.com/JonMunkholm/csvbatch/internal/report"
	"github.com/JonMunkholm/csvbatch/internal/web/views"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var (
	errInvalidBody    = errors.New("invalid request body")
	errInvalidLogName = errors.New("invalid log name")
)

// localMessages covers errors of the web layer itself.
var localMessages = []struct {
	target error
	msg    core.UserMessage
}{
	{errInvalidBody, core.UserMessage{
		Message: "The request body could not be read",
		Action:  "Send a JSON object with action and files",
		Code:    "REQ001",
	}},
	{errInvalidLogName, core.UserMessage{
		Message: "The log name is invalid",
		Action:  "Use a file name from the run's log folder",
		Code:    "REQ002",
	}},
	{os.ErrNotExist, core.UserMessage{
		Message: "The log file does not exist",
		Action:  "Check the log name in the run history",
		Code:    "LOG001",
	}},
	{report.ErrNoEntries, core.UserMessage{
		Message: "The log file has no entries",
		Action:  "Pick the info log of a file that processed rows",
		Code:    "LOG002",
	}},
}

func userMessage(err error) core.UserMessage {
	for _, m := range localMessages {
		if errors.Is(err, m.target) {
			return m.msg
		}
	}
	return core.MapError(err)
}

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoActiveRun),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, core.ErrMissingCredential):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrMissingLogDir),
		errors.Is(err, core.ErrLogDirOutsideRoot),
		errors.Is(err, core.ErrNoInputFiles),
		errors.Is(err, core.ErrInvalidStartRow),
		errors.Is(err, core.ErrUnknownAction),
		errors.Is(err, errInvalidBody),
		errors.Is(err, errInvalidLogName):
		return http.StatusBadRequest
	case errors.Is(err, report.ErrNoEntries):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := userMessage(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if wantsJSON(r) {
		writeJSON(w, status, ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	views.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// wantsJSON reports whether the client should get JSON. API routes default
// to JSON unless the client explicitly asks for HTML.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return true
	}
	if strings.Contains(accept, "text/html") {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
