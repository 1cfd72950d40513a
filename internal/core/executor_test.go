package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T, handler http.HandlerFunc, opts ...HTTPExecutorOption) *HTTPExecutor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPExecutor(Endpoints{
		ContentServer: srv.URL + "/otcs/cs.exe/",
		Directory:     srv.URL + "/otdsws",
	}, opts...)
}

func TestHTTPExecutor_Success(t *testing.T) {
	var gotMethod, gotPath, gotTicket, gotType string
	var gotBody map[string]any

	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.RequestURI()
		gotTicket = r.Header.Get("OTCSTicket")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":{"id":42}}`)
	})

	out := exec.Execute(context.Background(), Request{
		API:    APIContentServer,
		Method: http.MethodPut,
		Path:   "/api/v2/members/42",
		Body:   map[string]any{"mail": "a@b.com"},
	}, Credential{Ticket: "tkt"})

	if out.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, want success (%+v)", out.Kind, out)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", out.StatusCode)
	}
	if gotMethod != http.MethodPut || gotPath != "/otcs/cs.exe/api/v2/members/42" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotTicket != "tkt" {
		t.Errorf("OTCSTicket = %q, want tkt", gotTicket)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody["mail"] != "a@b.com" {
		t.Errorf("body = %v", gotBody)
	}

	want := "{\n  \"results\": {\n    \"id\": 42\n  }\n}"
	if out.Body != want {
		t.Errorf("Body = %q, want %q", out.Body, want)
	}
}

func TestHTTPExecutor_DirectoryTicketHeader(t *testing.T) {
	var gotPath, otds, otcs string
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		otds = r.Header.Get("OTDSTicket")
		otcs = r.Header.Get("OTCSTicket")
		w.WriteHeader(http.StatusCreated)
	})

	out := exec.Execute(context.Background(), Request{
		API:    APIDirectory,
		Method: http.MethodPost,
		Path:   "/rest/groups",
		Body:   map[string]any{"name": "x"},
	}, Credential{Ticket: "dir"})

	if out.Kind != OutcomeSuccess || out.StatusCode != http.StatusCreated {
		t.Fatalf("outcome = %+v", out)
	}
	if gotPath != "/otdsws/rest/groups" {
		t.Errorf("path = %q", gotPath)
	}
	if otds != "dir" || otcs != "" {
		t.Errorf("OTDSTicket = %q, OTCSTicket = %q", otds, otcs)
	}
}

func TestHTTPExecutor_HTTPError(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "no such member")
	})

	out := exec.Execute(context.Background(), Request{
		API: APIContentServer, Method: http.MethodDelete, Path: "/api/v2/members/9",
	}, Credential{Ticket: "t"})

	if out.Kind != OutcomeHTTPError {
		t.Fatalf("Kind = %v, want http_error", out.Kind)
	}
	if out.StatusCode != http.StatusNotFound || out.Reason != "Not Found" {
		t.Errorf("status = %d %q", out.StatusCode, out.Reason)
	}
	if out.Body != "no such member" {
		t.Errorf("non-JSON body changed: %q", out.Body)
	}
}

func TestHTTPExecutor_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	exec := NewHTTPExecutor(Endpoints{ContentServer: base, Directory: base})
	out := exec.Execute(context.Background(), Request{
		API: APIContentServer, Method: http.MethodGet, Path: "/api/v2/members/1",
	}, Credential{Ticket: "t"})

	if out.Kind != OutcomeTransportError {
		t.Fatalf("Kind = %v, want transport_error", out.Kind)
	}
	if out.Message == "" {
		t.Error("transport error without message")
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	release := make(chan struct{})
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithRequestTimeout(50*time.Millisecond))
	defer close(release)

	out := exec.Execute(context.Background(), Request{
		API: APIContentServer, Method: http.MethodGet, Path: "/slow",
	}, Credential{Ticket: "t"})

	if out.Kind != OutcomeTransportError {
		t.Fatalf("Kind = %v, want transport_error", out.Kind)
	}
	if !strings.Contains(out.Message, "timed out") {
		t.Errorf("Message = %q, want timeout detail", out.Message)
	}
}

func TestHTTPExecutor_CancelledBeforeCall(t *testing.T) {
	called := false
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := exec.Execute(ctx, Request{API: APIContentServer, Method: http.MethodGet, Path: "/x"}, Credential{Ticket: "t"})
	if out.Kind != OutcomeCancelled {
		t.Errorf("Kind = %v, want cancelled", out.Kind)
	}
	if called {
		t.Error("server was called after cancellation")
	}
}

func TestHTTPExecutor_CancelledDuringCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	entered := make(chan struct{})
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	})

	go func() {
		<-entered
		cancel()
	}()

	out := exec.Execute(ctx, Request{API: APIContentServer, Method: http.MethodGet, Path: "/x"}, Credential{Ticket: "t"})
	if out.Kind != OutcomeCancelled {
		t.Errorf("Kind = %v, want cancelled", out.Kind)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHTTPExecutor_CancelledAfterResponseKeepsOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		cancel()
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"id":7}`)),
			Request:    r,
		}, nil
	})}
	exec := NewHTTPExecutor(Endpoints{ContentServer: "http://cs.invalid/otcs/cs.exe"}, WithHTTPClient(client))

	out := exec.Execute(ctx, Request{API: APIContentServer, Method: http.MethodGet, Path: "/api/v2/members/7"}, Credential{Ticket: "t"})

	if out.Kind != OutcomeSuccess || out.StatusCode != http.StatusOK {
		t.Fatalf("outcome = %+v, want success 200", out)
	}
	if !strings.Contains(out.Body, `"id": 7`) {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestPrettyBody(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, "{\n  \"a\": 1\n}"},
		{`[1,2]`, "[\n  1,\n  2\n]"},
		{"plain text", "plain text"},
		{"", ""},
		{`{"broken":`, `{"broken":`},
	}
	for _, tt := range tests {
		if got := prettyBody([]byte(tt.in)); got != tt.want {
			t.Errorf("prettyBody(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
