package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

// Local stores uploads under a directory on disk.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Put(ctx context.Context, owner, name, contentType string, r io.Reader) (trade.FileRef, error) {
	b, err := readBlob(owner, name, contentType, r)
	if err != nil {
		return trade.FileRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return trade.FileRef{}, err
	}
	if err := os.WriteFile(filepath.Join(l.dir, b.key), b.data, 0o644); err != nil {
		return trade.FileRef{}, fmt.Errorf("write upload: %w", err)
	}
	return b.ref(b.key), nil
}

func (l *Local) Open(_ context.Context, ref string) (io.ReadCloser, string, error) {
	if !validRef(ref) {
		return nil, "", ErrNotFound
	}
	path := filepath.Join(l.dir, ref)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		f.Close()
		return nil, "", err
	}
	return f, mt.String(), nil
}

func (l *Local) Stat(_ context.Context, ref string) (string, error) {
	if !validRef(ref) {
		return "", ErrNotFound
	}
	mt, err := mimetype.DetectFile(filepath.Join(l.dir, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}
