package core

// error_messages.go maps run errors to user-facing messages with a support
// code. Codes are grouped by category:
//
//	RUN001 - A batch run is already in progress
//	RUN002 - No batch run is active
//	RUN003 - The run was cancelled
//	CFG001 - No credential supplied
//	CFG002 - Log directory does not exist
//	CFG003 - No input files selected
//	CFG004 - Start row below 1
//	CFG005 - Unknown action
//	CSV001 - Input file not found
//	CSV002 - Input file empty
//	NET001 - Remote server refused the connection
//	NET002 - Remote call timed out
//	NET003 - Remote certificate rejected
//	ERR000 - Anything else; check the server log for the technical error
//
// Sentinel errors are matched with errors.Is first. Errors that only carry
// text (wrapped library errors) fall back to case-insensitive substring
// patterns, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrRunInProgress, UserMessage{
		Message: "A batch run is already in progress",
		Action:  "Wait for it to finish or cancel it first",
		Code:    "RUN001",
	}},
	{ErrNoActiveRun, UserMessage{
		Message: "No batch run is active",
		Action:  "Start a run first",
		Code:    "RUN002",
	}},
	{context.Canceled, UserMessage{
		Message: "The run was cancelled",
		Action:  "Resume with a start row after the last logged row",
		Code:    "RUN003",
	}},
	{ErrMissingCredential, UserMessage{
		Message: "You are not logged in",
		Action:  "Log in and supply the ticket before starting a run",
		Code:    "CFG001",
	}},
	{ErrMissingLogDir, UserMessage{
		Message: "The log folder does not exist",
		Action:  "Create the folder or choose an existing one",
		Code:    "CFG002",
	}},
	{ErrLogDirOutsideRoot, UserMessage{
		Message: "The log folder is outside the configured log root",
		Action:  "Choose a folder inside the log root, or leave it empty for the default",
		Code:    "CFG006",
	}},
	{ErrNoInputFiles, UserMessage{
		Message: "No CSV files were selected",
		Action:  "Select at least one input file",
		Code:    "CFG003",
	}},
	{ErrInvalidStartRow, UserMessage{
		Message: "The start row is invalid",
		Action:  "Use a start row of 1 or greater",
		Code:    "CFG004",
	}},
	{ErrUnknownAction, UserMessage{
		Message: "The selected action is not supported",
		Action:  "Choose one of the listed actions",
		Code:    "CFG005",
	}},
	{ErrFileNotFound, UserMessage{
		Message: "The CSV file could not be found",
		Action:  "Check the file path",
		Code:    "CSV001",
	}},
	{ErrEmptyFile, UserMessage{
		Message: "The CSV file has no data rows",
		Action:  "Add a header line and at least one data row",
		Code:    "CSV002",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The remote server refused the connection",
			Action:  "Check the server URL and that the server is running",
			Code:    "NET001",
		},
	},
	{
		pattern: "timed out",
		msg: UserMessage{
			Message: "The remote call timed out",
			Action:  "Try again later or resume from the last logged row",
			Code:    "NET002",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The remote call timed out",
			Action:  "Try again later or resume from the last logged row",
			Code:    "NET002",
		},
	},
	{
		pattern: "x509",
		msg: UserMessage{
			Message: "The remote server's certificate was rejected",
			Action:  "Install the server certificate or enable insecure TLS for test servers",
			Code:    "NET003",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error into a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
