package core

import (
	"context"
	"errors"
	"io"
)

var ErrFileNotFound = errors.New("file not found")

// FileStorage stores uploaded files and hands out stable references to them.
type FileStorage interface {
	// Save stores the content of r and returns a reference that can later be used to Open or Delete it.
	// name is only used as a hint (eg. for the file extension).
	Save(ctx context.Context, name string, r io.Reader) (ref string, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}
