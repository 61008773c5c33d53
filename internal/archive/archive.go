// Package archive keeps copies of scanned receipt images in Cloud Storage.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"nota/internal/extract"
)

// Archiver stores an image and returns its gs:// URI.
type Archiver interface {
	Store(ctx context.Context, img extract.Image, at time.Time) (string, error)
}

// Nop discards images.
type Nop struct{}

func (Nop) Store(context.Context, extract.Image, time.Time) (string, error) { return "", nil }

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// ObjectName returns receipts/<yyyy>/<mm>/<id><ext> for an image stored at at.
func ObjectName(at time.Time, id uuid.UUID, mimeType string) string {
	ext, ok := extensions[mimeType]
	if !ok {
		ext = ".bin"
	}
	return path.Join("receipts", at.Format("2006"), at.Format("01"), id.String()+ext)
}

// ParseURI splits gs://bucket/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool { return strings.HasPrefix(s, "gs://") }
