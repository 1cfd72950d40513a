package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/source"
	"github.com/google/uuid"
)

// Pre-flight errors returned by StartRun before any file is touched.
var (
	ErrMissingCredential = errors.New("no credential: log in before starting a run")
	ErrMissingLogDir     = errors.New("log directory does not exist")
	ErrLogDirOutsideRoot = errors.New("log directory is outside the log root")
	ErrNoInputFiles      = errors.New("no input files selected")
	ErrInvalidStartRow   = errors.New("start row must be 1 or greater")
)

// ErrNoActiveRun is returned by operations that need a running batch.
var ErrNoActiveRun = errors.New("no batch run is active")

// ServiceConfig holds the defaults applied to run requests.
type ServiceConfig struct {
	LogDir          string
	DefaultStartRow int
}

// Service owns the single active run and exposes its lifecycle to frontends.
type Service struct {
	executor Executor
	source   source.Source
	history  HistoryRecorder
	cfg      ServiceConfig
	logger   *slog.Logger

	limiter *RunLimiter
	pool    *taskPool

	// now is swapped in tests.
	now func() time.Time

	mu      sync.RWMutex
	current *activeRun
	last    *RunSummary
}

type activeRun struct {
	ID        string
	Request   RunRequest
	Cancel    context.CancelFunc
	Progress  *BatchProgress
	Future    *runFuture
	StartedAt time.Time

	requesterIP string
	userAgent   string

	listenerMu sync.Mutex
	listeners  []chan ProgressSnapshot
	closed     bool
}

// NewService creates a Service. history may be nil.
func NewService(exec Executor, src source.Source, history HistoryRecorder, cfg ServiceConfig) (*Service, error) {
	if cfg.DefaultStartRow < 1 {
		cfg.DefaultStartRow = 1
	}
	pool, err := newTaskPool(1)
	if err != nil {
		return nil, err
	}
	return &Service{
		executor: exec,
		source:   src,
		history:  history,
		cfg:      cfg,
		logger:   slog.Default(),
		limiter:  NewRunLimiter(1),
		pool:     pool,
		now:      time.Now,
	}, nil
}

// SetLogger replaces the logger used for run lifecycle events.
func (s *Service) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Actions lists every supported action contract.
func (s *Service) Actions() []ActionSpec {
	return Actions()
}

// LogDir returns the default run log directory. Every run logs somewhere
// beneath it.
func (s *Service) LogDir() string {
	return s.cfg.LogDir
}

// ResolveLogDir maps a requested log directory onto the log root. An empty
// dir is the root itself; a relative one is taken relative to the root. The
// result never lies outside the root.
func (s *Service) ResolveLogDir(dir string) (string, error) {
	root := s.cfg.LogDir
	if strings.TrimSpace(dir) == "" {
		return root, nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve log root: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrLogDirOutsideRoot, dir)
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrLogDirOutsideRoot, dir)
	}
	return filepath.Clean(dir), nil
}

// StartRun validates req and starts it in the background. The run is
// detached from ctx; only CancelRun or Close stops it.
func (s *Service) StartRun(ctx context.Context, req RunRequest) (string, error) {
	req, err := s.prepare(req)
	if err != nil {
		return "", err
	}
	if err := s.limiter.TryAcquire(); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())

	run := &activeRun{
		ID:          runID,
		Request:     req,
		Cancel:      cancel,
		Progress:    NewBatchProgress(runID, req.Action, len(req.Files)),
		Future:      newRunFuture(),
		StartedAt:   s.now(),
		requesterIP: IPAddressFromContext(ctx),
		userAgent:   UserAgentFromContext(ctx),
	}

	runner := &Runner{
		Executor:   s.executor,
		Source:     s.source,
		Now:        s.now,
		OnProgress: run.notifyProgress,
		Logger:     s.logger.With("run_id", runID),
	}

	s.mu.Lock()
	s.current = run
	s.mu.Unlock()

	// Future exists before the run is published so Wait never sees it unset.
	err = s.pool.Submit(run.Future, func() (summary RunSummary, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("run panicked: %v", p)
				summary = s.summarize(run, RunResult{Status: StatusFailed}, err)
			}
			s.finish(run, summary)
		}()
		result := runner.Run(runCtx, req, run.Progress)
		return s.summarize(run, result, nil), nil
	})
	if err != nil {
		cancel()
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		s.limiter.Release()
		return "", err
	}

	s.logger.Info("run started",
		"run_id", runID,
		"action", req.Action,
		"files", len(req.Files),
		"start_row", req.StartRow,
	)
	return runID, nil
}

// prepare applies defaults and runs the pre-flight checks.
func (s *Service) prepare(req RunRequest) (RunRequest, error) {
	if strings.TrimSpace(req.Credential.Ticket) == "" {
		return req, ErrMissingCredential
	}

	action, err := ParseAction(string(req.Action))
	if err != nil {
		return req, err
	}
	req.Action = action

	logDir, err := s.ResolveLogDir(req.LogDir)
	if err != nil {
		return req, err
	}
	req.LogDir = logDir
	info, err := os.Stat(req.LogDir)
	if err != nil || !info.IsDir() {
		return req, fmt.Errorf("%w: %s", ErrMissingLogDir, req.LogDir)
	}

	files := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return req, ErrNoInputFiles
	}
	req.Files = files

	if req.StartRow == 0 {
		req.StartRow = s.cfg.DefaultStartRow
	}
	if req.StartRow < 1 {
		return req, fmt.Errorf("%w: %d", ErrInvalidStartRow, req.StartRow)
	}
	return req, nil
}

func (s *Service) summarize(run *activeRun, result RunResult, err error) RunSummary {
	summary := RunSummary{
		RunID:       run.ID,
		Action:      run.Request.Action,
		Status:      result.Status,
		StartRow:    run.Request.StartRow,
		LogDir:      run.Request.LogDir,
		Progress:    run.Progress.Snapshot(),
		Files:       result.Files,
		RequesterIP: run.requesterIP,
		UserAgent:   run.userAgent,
		StartedAt:   run.StartedAt,
		FinishedAt:  s.now(),
	}
	if err != nil {
		summary.Status = StatusFailed
		summary.Error = err.Error()
		summary.Progress.Status = StatusFailed
	}
	return summary
}

// finish publishes the summary and frees the run slot.
func (s *Service) finish(run *activeRun, summary RunSummary) {
	s.recordHistory(summary)

	s.mu.Lock()
	s.last = &summary
	if s.current == run {
		s.current = nil
	}
	s.mu.Unlock()

	run.closeListeners()
	run.Cancel()
	s.limiter.Release()

	s.logger.Info("run finished",
		"run_id", summary.RunID,
		"status", summary.Status,
		"processed_files", summary.Progress.ProcessedFiles,
		"error_files", summary.Progress.ErrorFiles,
		"rows_processed", summary.Progress.RowsProcessed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
}

// CancelRun asks the active run to stop. Rows already recorded are kept.
func (s *Service) CancelRun() error {
	s.mu.RLock()
	run := s.current
	s.mu.RUnlock()

	if run == nil {
		return ErrNoActiveRun
	}
	run.Cancel()
	s.logger.Info("run cancellation requested", "run_id", run.ID)
	return nil
}

// Wait blocks until the active run ends and returns its summary. With no
// active run it returns the last summary, or ErrNoActiveRun.
func (s *Service) Wait(ctx context.Context) (RunSummary, error) {
	s.mu.RLock()
	run, last := s.current, s.last
	s.mu.RUnlock()

	if run == nil {
		if last != nil {
			return *last, nil
		}
		return RunSummary{}, ErrNoActiveRun
	}

	select {
	case <-run.Future.Done():
		return run.Future.Get()
	case <-ctx.Done():
		return RunSummary{}, ctx.Err()
	}
}

// Running reports whether a run is active.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Progress returns the counters of the active run, else of the last run,
// else an idle snapshot.
func (s *Service) Progress() ProgressSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.current != nil:
		return s.current.Progress.Snapshot()
	case s.last != nil:
		return s.last.Progress
	default:
		return ProgressSnapshot{Status: StatusIdle}
	}
}

// LastSummary returns the summary of the most recent finished run.
func (s *Service) LastSummary() (RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RunSummary{}, false
	}
	return *s.last, true
}

// Reset clears the last run's counters so Progress reports Idle again.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return ErrRunInProgress
	}
	s.last = nil
	return nil
}

// SubscribeProgress returns a channel of progress updates for the active
// run. The current snapshot is delivered first; the channel is closed when
// the run ends.
func (s *Service) SubscribeProgress() (<-chan ProgressSnapshot, error) {
	s.mu.RLock()
	run := s.current
	s.mu.RUnlock()

	if run == nil {
		return nil, ErrNoActiveRun
	}

	ch := make(chan ProgressSnapshot, 16)

	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	ch <- run.Progress.Snapshot()
	if run.closed {
		close(ch)
		return ch, nil
	}
	run.listeners = append(run.listeners, ch)
	return ch, nil
}

// Close cancels any active run, waits for it to release its slot and stops
// the worker pool.
func (s *Service) Close(ctx context.Context) error {
	if err := s.CancelRun(); err != nil && !errors.Is(err, ErrNoActiveRun) {
		return err
	}
	err := s.limiter.WaitForDrain(ctx)
	s.pool.Release()
	return err
}

// notifyProgress sends a snapshot to every listener, dropping it for slow ones.
func (run *activeRun) notifyProgress(snap ProgressSnapshot) {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	for _, ch := range run.listeners {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (run *activeRun) closeListeners() {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
	run.closed = true
}
