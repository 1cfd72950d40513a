// Package core drives batches of remote user/group API calls from CSV files.
//
// This package holds all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Architecture
//
// A run applies one [Action] to every data row of one or more CSV files:
//
//   - [CsvTable]: the parsed input file. Lines are split on commas; header
//     lookups ignore case.
//   - [BuildRequest]: maps one row to a [Request] using the action's
//     [ActionSpec] (API, method, URL template, required columns). Bad values
//     come back as [ValidationFailure].
//   - [HTTPExecutor]: sends a request with the run's [Credential] and
//     classifies the result as an [ActionOutcome].
//   - [RunLogger]: the per-file info and error logs.
//   - [Runner]: the file and row loop, honouring the start row and
//     cancellation.
//   - [Service]: owns the single active run, its progress and history.
//
// # Starting a Run
//
//	svc, err := core.NewService(executor, source.NewRouter(10*time.Second), store, core.ServiceConfig{
//	    LogDir:          "./logs",
//	    DefaultStartRow: 1,
//	})
//	runID, err := svc.StartRun(ctx, core.RunRequest{
//	    Action:     core.ActionAddUserToGroup,
//	    Files:      []string{"members.csv"},
//	    Credential: core.Credential{Ticket: ticket},
//	})
//
// Pre-flight failures ([ErrMissingCredential], [ErrMissingLogDir],
// [ErrNoInputFiles], [ErrInvalidStartRow], [ErrUnknownAction]) are returned
// before anything is logged. A second StartRun while one is active returns
// [ErrRunInProgress].
//
// # Run Logs
//
// Each processed file gets
//
//	{logDir}/{csvBase}_{ddMMyyyy_HHmm}.log
//	{logDir}/{csvBase}_{ddMMyyyy_HHmm}_error.log
//
// with entries of the form
//
//	[TAG] 2006-01-02 15:04:05Z - message
//
// optionally followed by a pretty-printed JSON body. START and SUCCESS go to
// the info log; every error tag goes to the error log, which is deleted when
// nothing was written to it.
//
// # Error Handling
//
// [MapError] converts errors into user-friendly messages with a support code:
//
//	msg := core.MapError(err)
//	// msg.Message: "A batch run is already in progress"
//	// msg.Action:  "Wait for it to finish or cancel it first"
//	// msg.Code:    "RUN001"
//
// # Thread Safety
//
// [Service] is safe for concurrent use. Progress snapshots may be read from
// any goroutine while a run is active.
package core
