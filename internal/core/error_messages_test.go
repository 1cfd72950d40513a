package core

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:        "run in progress",
			err:         ErrRunInProgress,
			wantCode:    "RUN001",
			wantMessage: "A batch run is already in progress",
		},
		{
			name:     "no active run",
			err:      ErrNoActiveRun,
			wantCode: "RUN002",
		},
		{
			name:        "missing credential",
			err:         ErrMissingCredential,
			wantCode:    "CFG001",
			wantMessage: "You are not logged in",
		},
		{
			name:     "wrapped log dir error",
			err:      fmt.Errorf("%w: /nope", ErrMissingLogDir),
			wantCode: "CFG002",
		},
		{
			name:     "log dir outside root",
			err:      fmt.Errorf("%w: /etc", ErrLogDirOutsideRoot),
			wantCode: "CFG006",
		},
		{
			name:     "no input files",
			err:      ErrNoInputFiles,
			wantCode: "CFG003",
		},
		{
			name:     "invalid start row",
			err:      fmt.Errorf("%w: 0", ErrInvalidStartRow),
			wantCode: "CFG004",
		},
		{
			name:     "unknown action",
			err:      fmt.Errorf("%w: %q", ErrUnknownAction, "Frobnicate"),
			wantCode: "CFG005",
		},
		{
			name:     "file not found wrapped by pkg/errors",
			err:      pkgerrors.Wrap(ErrFileNotFound, "users.csv"),
			wantCode: "CSV001",
		},
		{
			name:     "empty file",
			err:      pkgerrors.Wrap(ErrEmptyFile, "users.csv"),
			wantCode: "CSV002",
		},
		{
			name:        "connection refused pattern",
			err:         errors.New("dial tcp 10.0.0.1:443: connect: Connection Refused"),
			wantCode:    "NET001",
			wantMessage: "The remote server refused the connection",
		},
		{
			name:     "timeout pattern",
			err:      errors.New("request timed out after 30s"),
			wantCode: "NET002",
		},
		{
			name:     "certificate pattern",
			err:      errors.New("x509: certificate signed by unknown authority"),
			wantCode: "NET003",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	want := "A batch run is already in progress (Code: RUN001). Wait for it to finish or cancel it first"
	if got := FormatUserError(ErrRunInProgress); got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrNoInputFiles, true},
		{errors.New("connection refused"), true},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsUserFacing(tt.err); got != tt.want {
			t.Errorf("IsUserFacing(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
