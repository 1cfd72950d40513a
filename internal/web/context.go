package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/csvbatch/internal/core"
)

// WithRequestMetadata copies the requester address and User-Agent into ctx
// so the run history can record who started a run.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ctx = core.ContextWithIPAddress(ctx, ip)
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}
