package photos

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidPayload = errors.New("photo payload is not a valid data URI")

// Store converts inline image payloads into stored references. Plain URLs
// pass through untouched; raw payloads are never persisted on a record.
type Store interface {
	// Save returns a servable URL for the payload. If the payload is
	// already a URL it is returned as-is.
	Save(eventID, payload string) (string, error)
}

// IsInline reports whether the payload is a raw data-URI image rather than
// a reference to an already stored photo.
func IsInline(payload string) bool {
	return strings.HasPrefix(payload, "data:image/")
}

// DiskStore writes photos under baseDir/{eventID}/ and serves them under
// baseURL via the router's static mount.
type DiskStore struct {
	baseDir string
	baseURL string
	log     *zerolog.Logger
}

func NewDiskStore(baseDir, baseURL string, log *zerolog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &DiskStore{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/"), log: log}, nil
}

func (s *DiskStore) Save(eventID, payload string) (string, error) {
	if !IsInline(payload) {
		return payload, nil
	}

	ext, data, err := decodeDataURI(payload)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.baseDir, eventID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create event photo directory: %w", err)
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	url := s.baseURL + "/" + eventID + "/" + name
	s.log.Debug().Str("event_id", eventID).Str("url", url).Msg("photo stored")
	return url, nil
}

func decodeDataURI(payload string) (ext string, data []byte, err error) {
	rest := strings.TrimPrefix(payload, "data:image/")
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return "", nil, ErrInvalidPayload
	}
	switch rest[:sep] {
	case "jpeg", "jpg":
		ext = ".jpg"
	case "png":
		ext = ".png"
	case "webp":
		ext = ".webp"
	default:
		return "", nil, ErrInvalidPayload
	}
	data, err = base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return "", nil, ErrInvalidPayload
	}
	if len(data) == 0 {
		return "", nil, ErrInvalidPayload
	}
	return ext, data, nil
}
