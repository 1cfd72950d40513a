package core

// executor.go sends built requests and classifies the results.

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds one remote call.
const DefaultRequestTimeout = 30 * time.Second

// Executor performs one remote call. Implementations never return an error:
// every result, including cancellation, is an ActionOutcome.
type Executor interface {
	Execute(ctx context.Context, req Request, cred Credential) ActionOutcome
}

// Endpoints are the REST roots requests are resolved against.
type Endpoints struct {
	ContentServer string
	Directory     string
}

func (e Endpoints) base(api API) string {
	if api == APIDirectory {
		return strings.TrimRight(e.Directory, "/")
	}
	return strings.TrimRight(e.ContentServer, "/")
}

// HTTPExecutor is the Executor used against live servers.
type HTTPExecutor struct {
	client    *http.Client
	endpoints Endpoints
	timeout   time.Duration
}

// HTTPExecutorOption configures an HTTPExecutor.
type HTTPExecutorOption func(*HTTPExecutor)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPExecutorOption {
	return func(e *HTTPExecutor) { e.client = c }
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) HTTPExecutorOption {
	return func(e *HTTPExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithInsecureTLS skips certificate verification. Only for test servers with
// self-signed certificates.
func WithInsecureTLS() HTTPExecutorOption {
	return func(e *HTTPExecutor) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		e.client = &http.Client{Transport: tr}
	}
}

// NewHTTPExecutor creates an executor for the given endpoints.
func NewHTTPExecutor(endpoints Endpoints, opts ...HTTPExecutorOption) *HTTPExecutor {
	e := &HTTPExecutor{
		client:    &http.Client{},
		endpoints: endpoints,
		timeout:   DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends req with the credential attached. ctx is the run's
// cancellation signal; the per-call timeout is applied on top of it.
func (e *HTTPExecutor) Execute(ctx context.Context, req Request, cred Credential) ActionOutcome {
	if ctx.Err() != nil {
		return ActionOutcome{Kind: OutcomeCancelled}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := e.newRequest(callCtx, req, cred)
	if err != nil {
		return ActionOutcome{Kind: OutcomeTransportError, Message: err.Error()}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return e.transportFailure(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return e.transportFailure(ctx, callCtx, fmt.Errorf("read response: %w", err))
	}
	// A response read in full is reported even if ctx was cancelled
	// meanwhile; the runner stops before the next row.

	out := ActionOutcome{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Body:       prettyBody(raw),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Kind = OutcomeSuccess
	} else {
		out.Kind = OutcomeHTTPError
	}
	return out
}

func (e *HTTPExecutor) newRequest(ctx context.Context, req Request, cred Credential) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, e.endpoints.base(req.API)+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if cred.Ticket != "" {
		httpReq.Header.Set(req.API.TicketHeader(), cred.Ticket)
	}
	return httpReq, nil
}

// transportFailure separates run cancellation from a call that hit its own
// deadline or failed on the wire.
func (e *HTTPExecutor) transportFailure(runCtx, callCtx context.Context, err error) ActionOutcome {
	if runCtx.Err() != nil {
		return ActionOutcome{Kind: OutcomeCancelled}
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return ActionOutcome{
			Kind:    OutcomeTransportError,
			Message: fmt.Sprintf("request timed out after %s: %v", e.timeout, err),
		}
	}
	return ActionOutcome{Kind: OutcomeTransportError, Message: err.Error()}
}

func reasonPhrase(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// prettyBody indents JSON bodies; anything else passes through unchanged.
func prettyBody(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return string(raw)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
