// Package image manages binary image artifacts and their metadata
// sidecars. Every stored image is a pair of keys under the images/
// prefix: the blob itself and a JSON sidecar sharing the same stem.
package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
)

// Directory is the storage prefix owned by this package.
const Directory = "images/"

// MIMEType is the set of image formats the companion accepts.
type MIMEType string

const (
	PNG  MIMEType = "image/png"
	JPEG MIMEType = "image/jpeg"
	GIF  MIMEType = "image/gif"
)

// Ref describes one stored (or about-to-be-stored) image. Width and
// height are recorded by the capture surface; the pipeline carries them
// through untouched.
type Ref struct {
	Path     string   `json:"path"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	MIMEType MIMEType `json:"mimeType"`
}

// Store persists image blob/sidecar pairs through a key-value backend.
type Store struct {
	store storage.Store
	log   logger.Logger
}

// NewStore wires an image store over the given backend.
func NewStore(store storage.Store, log logger.Logger) *Store {
	return &Store{store: store, log: log}
}

// Has reports whether both artifacts of the pair exist. A pair with one
// half missing is treated as absent; access through Get or Load will
// surface the corruption.
func (s *Store) Has(ctx context.Context, ref Ref) (bool, error) {
	if err := validatePath(ref.Path); err != nil {
		return false, err
	}

	blob, err := s.store.Has(ctx, ref.Path)
	if err != nil {
		return false, err
	}
	sidecar, err := s.store.Has(ctx, sidecarKey(ref.Path))
	if err != nil {
		return false, err
	}
	return blob && sidecar, nil
}

// Get reads the metadata sidecar back into a Ref. A missing sidecar is
// an InvalidArgument: callers hold references that are expected to
// resolve, so a dangling one indicates caller or storage corruption.
func (s *Store) Get(ctx context.Context, ref Ref) (Ref, error) {
	if err := validatePath(ref.Path); err != nil {
		return Ref{}, err
	}

	raw, err := s.store.Get(ctx, sidecarKey(ref.Path))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return Ref{}, apperrors.NewInvalidArgument("no image stored at path: %s", ref.Path)
		}
		return Ref{}, err
	}

	var stored Ref
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Ref{}, fmt.Errorf("failed to decode image metadata for %s: %w", ref.Path, err)
	}
	return stored, nil
}

// Delete removes both halves of the pair. Partial failures are merged so
// the caller sees everything that went wrong; a fully missing pair fails
// with InvalidArgument rather than no-op-ing.
func (s *Store) Delete(ctx context.Context, ref Ref) error {
	if err := validatePath(ref.Path); err != nil {
		return err
	}

	var result error
	deleted := 0

	for _, key := range []string{ref.Path, sidecarKey(ref.Path)} {
		err := s.store.Delete(ctx, key)
		switch {
		case err == nil:
			deleted++
		case apperrors.IsNotFound(err):
			// half-missing pair, keep going so the survivor is removed
		default:
			result = multierror.Append(result, err)
		}
	}

	if result != nil {
		return result
	}
	if deleted == 0 {
		return apperrors.NewInvalidArgument("no image stored at path: %s", ref.Path)
	}

	s.log.Debug("Deleted image pair", logger.StringField("path", ref.Path))
	return nil
}

// SaveFromGallery copies gallery bytes into the managed prefix. The
// source path must carry a recognized image extension and a non-empty
// file-name segment. The stored stem is uuid-stamped so two gallery
// picks with the same file name never collide.
func (s *Store) SaveFromGallery(ctx context.Context, data Ref, blob []byte) (Ref, error) {
	if err := validatePath(data.Path); err != nil {
		return Ref{}, err
	}

	fileName := path.Base(data.Path)
	ext := strings.ToLower(path.Ext(fileName))
	if strings.TrimSpace(strings.TrimSuffix(fileName, ext)) == "" || !isImageExtension(ext) {
		return Ref{}, apperrors.NewInvalidArgument("invalid image path: %s", data.Path)
	}

	stored := Ref{
		Path:     Directory + uuid.NewString() + ext,
		Width:    data.Width,
		Height:   data.Height,
		MIMEType: mimeForExtension(ext),
	}

	if err := s.store.Set(ctx, stored.Path, blob); err != nil {
		return Ref{}, fmt.Errorf("failed to store image blob: %w", err)
	}

	sidecar, err := json.Marshal(stored)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to encode image metadata: %w", err)
	}
	if err := s.store.Set(ctx, sidecarKey(stored.Path), sidecar); err != nil {
		return Ref{}, fmt.Errorf("failed to store image metadata: %w", err)
	}

	s.log.Info("Saved image from gallery",
		logger.StringField("source", data.Path),
		logger.StringField("stored", stored.Path))
	return stored, nil
}

// Load reads the blob back as a base64 payload for the vision model.
func (s *Store) Load(ctx context.Context, ref Ref) (string, error) {
	if err := validatePath(ref.Path); err != nil {
		return "", err
	}

	blob, err := s.store.Get(ctx, ref.Path)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", apperrors.NewInvalidArgument("no image stored at path: %s", ref.Path)
		}
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return apperrors.NewInvalidArgument("invalid image path: %q", p)
	}
	return nil
}

// sidecarKey swaps the blob extension for .json, keeping the stem.
func sidecarKey(p string) string {
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext) + ".json"
}

func isImageExtension(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}

func mimeForExtension(ext string) MIMEType {
	switch ext {
	case ".png":
		return PNG
	case ".gif":
		return GIF
	default:
		return JPEG
	}
}
