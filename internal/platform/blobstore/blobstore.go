// Package blobstore stores consent form files. Metadata lives with the
// patient record; this package only moves bytes.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the largest consent form accepted (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// AllowedContentTypes are the formats consent forms are scanned or exported in.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
	"text/plain":      true,
}

// Blob is a stored file.
type Blob struct {
	Key         string
	ContentType string
	Data        []byte
}

// Size returns the length of the file contents.
func (b *Blob) Size() int64 { return int64(len(b.Data)) }

// Hash returns the hex SHA-256 of the contents.
func (b *Blob) Hash() string {
	sum := sha256.Sum256(b.Data)
	return hex.EncodeToString(sum[:])
}

// Store is implemented by the memory and S3 backends.
type Store interface {
	Put(ctx context.Context, blob *Blob) error
	Get(ctx context.Context, key string) (*Blob, error)
	Delete(ctx context.Context, key string) error
}

// Validate checks an upload before it is stored.
func Validate(fileName, contentType string, size int64) error {
	if strings.TrimSpace(fileName) == "" {
		return ErrMissingFileName
	}
	if size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	if !AllowedContentTypes[strings.TrimSpace(strings.ToLower(mediaType))] {
		return fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}
	return nil
}

// ConsentKey is the object key of a patient's consent form.
func ConsentKey(patientID, consentID, fileName string) string {
	return path.Join("consents", patientID, consentID, path.Base(fileName))
}
