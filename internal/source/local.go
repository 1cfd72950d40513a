package source

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// LocalSource reads inputs from the local filesystem.
type LocalSource struct{}

func (s *LocalSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "open %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", name)
	}
	if info.IsDir() {
		f.Close()
		return nil, errors.Errorf("open %s: is a directory", name)
	}
	return f, nil
}
