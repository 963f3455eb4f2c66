// Package files stores uploaded attachments.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/planner/core"
)

// DiskStorage keeps files in a flat directory under generated names; the reference is the file name.
type DiskStorage struct {
	dir string
}

var _ core.FileStorage = (*DiskStorage)(nil) // interface compliance check

func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating upload directory")
	}
	return &DiskStorage{dir: dir}, nil
}

func (s *DiskStorage) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", core.ErrFileNotFound
	}
	return filepath.Join(s.dir, ref), nil
}

func (s *DiskStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	ref := uuid.New().String() + strings.ToLower(filepath.Ext(name))
	fp, _ := s.path(ref)

	f, err := os.OpenFile(fp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "closing file")
	}
	return ref, nil
}

func (s *DiskStorage) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	fp, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (s *DiskStorage) Delete(_ context.Context, ref string) error {
	fp, err := s.path(ref)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil {
		if os.IsNotExist(err) {
			return core.ErrFileNotFound
		}
		return errors.Wrap(err, "deleting file")
	}
	return nil
}
