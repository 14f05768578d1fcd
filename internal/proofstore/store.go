// Package proofstore keeps uploaded payment proofs on a filesystem.
package proofstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/segyhp/tontine-engine/internal/domain"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

// Store persists a proof file and returns an opaque reference to it.
type Store interface {
	Put(ctx context.Context, tontineID string, file domain.ProofFile) (string, error)
}

var _ Store = (*FileStore)(nil)

var allowed = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// FileStore writes proofs under <tontineID>/<uuid><ext> on fs.
type FileStore struct {
	fs       afero.Fs
	maxBytes int64
}

func NewFileStore(fs afero.Fs, maxBytes int64) *FileStore {
	return &FileStore{fs: fs, maxBytes: maxBytes}
}

// NewOsFileStore roots a FileStore at dir on the local disk.
func NewOsFileStore(dir string, maxBytes int64) (*FileStore, error) {
	if err := afero.NewOsFs().MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return NewFileStore(afero.NewBasePathFs(afero.NewOsFs(), dir), maxBytes), nil
}

func (s *FileStore) Put(ctx context.Context, tontineID string, file domain.ProofFile) (string, error) {
	if file.Content == nil {
		return "", customError.WrapValidation("proof file content is required")
	}

	data, err := io.ReadAll(io.LimitReader(file.Content, s.maxBytes+1))
	if err != nil {
		return "", customError.WrapProofStorageError(err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", customError.WrapValidation(fmt.Sprintf("proof file exceeds %d bytes", s.maxBytes))
	}
	if len(data) == 0 {
		return "", customError.WrapValidation("proof file is empty")
	}

	detected := mimetype.Detect(data)
	ext := ""
	for mime, e := range allowed {
		if detected.Is(mime) {
			ext = e
			break
		}
	}
	if ext == "" {
		return "", customError.WrapValidation(fmt.Sprintf("proof file type %s is not accepted", detected.String()))
	}

	if err := ctx.Err(); err != nil {
		return "", customError.WrapProofStorageError(err)
	}

	if err := s.fs.MkdirAll(tontineID, 0o755); err != nil {
		return "", customError.WrapProofStorageError(err)
	}
	ref := path.Join(tontineID, uuid.NewString()+ext)
	if err := afero.WriteReader(s.fs, ref, bytes.NewReader(data)); err != nil {
		return "", customError.WrapProofStorageError(err)
	}
	return ref, nil
}
