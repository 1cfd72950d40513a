// Package source opens CSV inputs for a batch run.
//
// Inputs are either local paths or ftp:// URLs pointing at a drop folder on
// an FTP server. Both kinds report a missing file as ErrNotFound so the
// runner can record a single FILE_ERROR for it.
package source

import (
	"context"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Open when the input does not exist.
var ErrNotFound = errors.New("file not found")

// Source opens an input by path.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Router dispatches to the FTP source for ftp:// URLs and to the local
// filesystem for everything else.
type Router struct {
	Local Source
	FTP   Source
}

// NewRouter returns a Router with the default local and FTP sources.
func NewRouter(ftpTimeout time.Duration) *Router {
	return &Router{
		Local: &LocalSource{},
		FTP:   &FTPSource{ConnTimeout: ftpTimeout},
	}
}

func (r *Router) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if IsRemote(name) {
		return r.FTP.Open(ctx, name)
	}
	return r.Local.Open(ctx, name)
}

// IsRemote reports whether name is an ftp:// URL.
func IsRemote(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "ftp://")
}

// BaseName returns the file name without directory or extension, for both
// local paths and ftp:// URLs. It is used to name run logs.
func BaseName(name string) string {
	base := filepath.Base(name)
	if IsRemote(name) {
		if u, err := url.Parse(name); err == nil {
			base = path.Base(u.Path)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Redact masks the password of an ftp:// URL so the name can be logged or
// stored. Local paths and URLs without a password are returned unchanged.
func Redact(name string) string {
	if !IsRemote(name) {
		return name
	}
	u, err := url.Parse(name)
	if err != nil {
		return "ftp://<unparseable>"
	}
	return u.Redacted()
}
