// Package filestore keeps proof and context-image uploads. The trade core
// only ever sees the returned FileRef.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

const MaxFileSize = 10 << 20

var (
	ErrTooLarge = errors.New("file exceeds size limit")
	ErrEmpty    = errors.New("file is empty")
	ErrNotFound = errors.New("file not found")
	ErrOwner    = errors.New("invalid file owner")
)

// Store persists uploaded blobs. Refs embed the uploader so ownership can be
// checked without a lookup.
type Store interface {
	Put(ctx context.Context, owner, name, contentType string, r io.Reader) (trade.FileRef, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
	// Stat returns the stored content type.
	Stat(ctx context.Context, ref string) (string, error)
}

const ownerSep = "_"

// Owner returns the uploader embedded in ref, or "" for a malformed ref.
func Owner(ref string) string {
	i := strings.LastIndex(ref, ownerSep)
	if i <= 0 {
		return ""
	}
	return ref[:i]
}

// validRef rejects refs that could escape the store's namespace.
func validRef(ref string) bool {
	return ref != "" && !strings.ContainsAny(ref, `/\`) && !strings.HasPrefix(ref, ".") && Owner(ref) != ""
}

// blob is an upload read fully into memory with its sniffed content type.
type blob struct {
	name        string
	key         string
	contentType string
	data        []byte
}

func readBlob(owner, name, contentType string, r io.Reader) (*blob, error) {
	if owner == "" || strings.ContainsAny(owner, `/\`) || strings.HasPrefix(owner, ".") {
		return nil, ErrOwner
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}
	detected := mimetype.Detect(data)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		base = "upload" + detected.Extension()
	}
	ext := strings.ToLower(filepath.Ext(base))
	if !plainExt(ext) {
		ext = detected.Extension()
	}
	return &blob{
		name:        base,
		key:         owner + ownerSep + uuid.New().String() + ext,
		contentType: contentType,
		data:        data,
	}, nil
}

// plainExt accepts short alphanumeric extensions only, keeping ownerSep out
// of the key suffix.
func plainExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (b *blob) reader() io.Reader { return bytes.NewReader(b.data) }

func (b *blob) ref(ref string) trade.FileRef {
	return trade.FileRef{
		Name:    b.name,
		Ref:     ref,
		IsImage: IsImage(b.contentType),
	}
}

// IsImage reports whether a content type should get an image preview.
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}
