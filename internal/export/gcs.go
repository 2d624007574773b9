package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSSink writes exports as objects in a Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
}

// NewGCSSink connects with application default credentials.
func NewGCSSink(ctx context.Context, bucket string) (*GCSSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs sink: empty bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket}, nil
}

func (g *GCSSink) Close() error { return g.client.Close() }

func (g *GCSSink) Location(name string) string {
	return "gs://" + g.bucket + "/" + name
}

// Create starts a resumable upload. Cancelling its context on Abort discards
// the partial object.
func (g *GCSSink) Create(ctx context.Context, name string) (Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	return &gcsObject{Writer: w, cancel: cancel}, nil
}

type gcsObject struct {
	*storage.Writer
	cancel context.CancelFunc
}

func (o *gcsObject) Commit() error {
	defer o.cancel()
	return o.Writer.Close()
}

func (o *gcsObject) Abort() {
	o.cancel()
	_ = o.Writer.Close()
}
