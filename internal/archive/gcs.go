package archive

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"nota/internal/extract"
)

const uploadTimeout = 2 * time.Minute

// GCS writes receipt images to one bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

var _ Archiver = (*GCS)(nil)

// NewGCS creates a storage client. Without credentialsJSON, Application
// Default Credentials are used.
func NewGCS(ctx context.Context, bucket string, credentialsJSON []byte) (*GCS, error) {
	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Store(ctx context.Context, img extract.Image, at time.Time) (string, error) {
	mt := img.DetectedMIME()
	name := ObjectName(at, uuid.New(), mt)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mt
	if img.Name != "" {
		w.Metadata = map[string]string{"original-name": img.Name}
	}
	if _, err := w.Write(img.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload %s: %w", name, err)
	}
	return "gs://" + g.bucket + "/" + name, nil
}

// Fetch downloads the object at a gs:// URI as an image.
func (g *GCS) Fetch(ctx context.Context, uri string) (extract.Image, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return extract.Image{}, err
	}
	rc, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return extract.Image{}, fmt.Errorf("read object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return extract.Image{}, fmt.Errorf("read bytes of %s: %w", uri, err)
	}
	mt := rc.Attrs.ContentType
	if mt == "" {
		mt = mime.TypeByExtension(path.Ext(object))
	}
	return extract.Image{Name: path.Base(object), Data: data, MIMEType: mt}, nil
}
