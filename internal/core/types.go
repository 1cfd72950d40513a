package core

import (
	"fmt"
	"time"
)

// Action identifies the remote operation applied to every row of a run.
type Action string

const (
	ActionSearchUsers         Action = "SearchUsers"
	ActionSearchUserByID      Action = "SearchUserById"
	ActionCreateUser          Action = "CreateUser"
	ActionUpdateUser          Action = "UpdateUser"
	ActionDeleteUser          Action = "DeleteUser"
	ActionSearchGroups        Action = "SearchGroups"
	ActionCreateGroup         Action = "CreateGroup"
	ActionCreateSubGroup      Action = "CreateSubGroup"
	ActionCreateDirectoryUser Action = "CreateDirectoryUser"
	ActionUpdateGroup         Action = "UpdateGroup"
	ActionDeleteGroup         Action = "DeleteGroup"
	ActionAddUserToGroup      Action = "AddUserToGroup"
	ActionRemoveUserFromGroup Action = "RemoveUserFromGroup"
)

// API names the remote REST surface a request targets.
type API string

const (
	APIContentServer API = "cs"
	APIDirectory     API = "otds"
)

// TicketHeader returns the header that carries the credential for the API.
func (a API) TicketHeader() string {
	if a == APIDirectory {
		return "OTDSTicket"
	}
	return "OTCSTicket"
}

// Credential is the pre-acquired ticket attached to every outbound request.
// The core never inspects or refreshes it.
type Credential struct {
	Ticket string
}

// Request is one remote call built from a CSV row.
type Request struct {
	Action Action
	API    API
	Method string
	Path   string         // relative to the API root, already escaped
	Body   map[string]any // nil for bodyless calls

	// Lookup, when set, must succeed before the main call. Its response is
	// handed to Resolve, which completes Body.
	Lookup  *Request
	Resolve func(body map[string]any, lookupResponse []byte) error
}

// OutcomeKind classifies the result of one remote call.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeHTTPError
	OutcomeTransportError
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ActionOutcome is the classified result of one row's remote call.
type ActionOutcome struct {
	Kind       OutcomeKind
	StatusCode int    // HTTPError only (also set on Success)
	Reason     string // HTTP reason phrase
	Body       string // pretty-printed when the response is JSON
	Message    string // TransportError detail
}

// LogTag is the prefix of a run log entry.
type LogTag string

const (
	TagStart        LogTag = "START"
	TagSuccess      LogTag = "SUCCESS"
	TagError        LogTag = "ERROR"
	TagRowError     LogTag = "ROW_ERROR"
	TagException    LogTag = "EXCEPTION"
	TagFileError    LogTag = "FILE_ERROR"
	TagGeneralError LogTag = "GENERAL_ERROR"
)

// IsErrorTag reports whether entries with this tag belong in the error log.
func (t LogTag) IsErrorTag() bool {
	switch t {
	case TagError, TagRowError, TagException, TagFileError, TagGeneralError:
		return true
	}
	return false
}

// LogTimestampLayout renders entry timestamps in UTC, universal sortable style.
const LogTimestampLayout = "2006-01-02 15:04:05Z"

// LogFileTimeLayout is the ddMMyyyy_HHmm suffix of run log file names.
const LogFileTimeLayout = "02012006_1504"

// ValidationFailure is a row-local problem with the CSV values. It is
// recorded as ROW_ERROR and the row is skipped; it never aborts the file.
type ValidationFailure struct {
	Row    int
	Reason string
}

func (v *ValidationFailure) Error() string {
	return fmt.Sprintf("row %d: %s", v.Row, v.Reason)
}

// RunStatus is the state of a run or of one file within it.
type RunStatus string

const (
	StatusIdle      RunStatus = "Idle"
	StatusRunning   RunStatus = "Running"
	StatusCompleted RunStatus = "Completed"
	StatusStopped   RunStatus = "Stopped"
	StatusFailed    RunStatus = "Failed"
)

// RunContext is the state of one CSV file during a run. It lives only as
// long as the file is being processed.
type RunContext struct {
	File          string
	CurrentRow    int
	StartRow      int // 1-based resume point
	RowsProcessed int // successes only
	ErrorWritten  bool
}

// RunRequest describes a batch run requested by a caller.
type RunRequest struct {
	Action     Action
	Files      []string
	StartRow   int // 0 means the configured default
	Credential Credential
	LogDir     string // empty means the configured default
}

// RunSummary is the outcome of a finished run, as kept in run history.
type RunSummary struct {
	RunID       string           `json:"run_id"`
	Action      Action           `json:"action"`
	Status      RunStatus        `json:"status"`
	StartRow    int              `json:"start_row"`
	LogDir      string           `json:"log_dir"`
	Progress    ProgressSnapshot `json:"progress"`
	Files       []FileResult     `json:"files"`
	RequesterIP string           `json:"requester_ip,omitempty"`
	UserAgent   string           `json:"user_agent,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Error       string           `json:"error,omitempty"`
}
