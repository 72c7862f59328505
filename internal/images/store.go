// Package images stores user uploaded images on the local filesystem.
package images

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"uchat/internal/domain"
	"uchat/internal/endpoint"
)

var (
	ErrInvalidDataURL = errors.New("invalid data url")
	ErrNotImage       = errors.New("data url is not an image")
	ErrTooLarge       = errors.New("image too large")
	ErrNotFound       = errors.New("image not found")
)

// rasterTypes are the sniffed content types the store accepts. Anything that
// a browser could run as a document, SVG included, is refused.
var rasterTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// sniffLen is how many bytes http.DetectContentType looks at.
const sniffLen = 512

type Store struct {
	dir      string
	apiURL   string
	maxBytes int64
}

func NewStore(dir, apiURL string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Store{dir: dir, apiURL: strings.TrimRight(apiURL, "/"), maxBytes: maxBytes}, nil
}

// MaxBytes is the largest decoded image the store accepts.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// ParseDataURL splits data:<mime>;base64,<payload> and decodes the payload.
// The returned mime is sniffed from the decoded bytes, not taken from the
// header.
func ParseDataURL(dataURL string, maxBytes int64) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: payload must be base64", ErrInvalidDataURL)
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", nil, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return "", nil, ErrTooLarge
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if int64(len(data)) > maxBytes {
		return "", nil, ErrTooLarge
	}
	detected := http.DetectContentType(data)
	if !rasterTypes[detected] {
		return "", nil, fmt.Errorf("%w: content is %s", ErrNotImage, detected)
	}
	return detected, data, nil
}

// SaveDataURL decodes the image and writes it under id. The file is written
// to a temporary name first so readers never see a partial image.
func (s *Store) SaveDataURL(id domain.ImageID, dataURL string) error {
	_, data, err := ParseDataURL(dataURL, s.maxBytes)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// Open returns the stored image and its sniffed content type. Files that do
// not sniff as a raster image are reported as application/octet-stream.
func (s *Store) Open(id domain.ImageID) (io.ReadSeekCloser, string, error) {
	f, err := os.Open(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	ct := http.DetectContentType(head[:n])
	if !rasterTypes[ct] {
		ct = "application/octet-stream"
	}
	return f, ct, nil
}

// Remove deletes a stored image. Removing a missing image is not an error.
func (s *Store) Remove(id domain.ImageID) error {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// URL is where clients can fetch the image.
func (s *Store) URL(id string) string {
	return s.apiURL + endpoint.UserContentImages + "/" + id
}

func (s *Store) path(id domain.ImageID) string {
	return filepath.Join(s.dir, id.String())
}
