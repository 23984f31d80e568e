package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client is the concrete implementation of ObjectStore
// that interacts with Google Cloud Storage.
type Client struct {
	client *storage.Client
}

// NewClient creates a storage client. It assumes Application Default
// Credentials are configured; STORAGE_EMULATOR_HOST is honored by the SDK.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Client{client: client}, nil
}

// Close closes the underlying storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ReadObject downloads an object and records its generation.
func (c *Client) ReadObject(ctx context.Context, bucket, key string) (*Object, error) {
	rc, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open GCS object reader %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read GCS object %s/%s: %w", bucket, key, err)
	}

	return &Object{Data: data, Generation: rc.Attrs.Generation}, nil
}

// WriteObject uploads data, replacing any previous content. Preconditions in
// opts are translated to GCS conditions.
func (c *Client) WriteObject(ctx context.Context, bucket, key string, data []byte, opts WriteOptions) error {
	obj := c.client.Bucket(bucket).Object(key)
	switch {
	case opts.IfDoesNotExist:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	case opts.IfGenerationMatch != 0:
		obj = obj.If(storage.Conditions{GenerationMatch: opts.IfGenerationMatch})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object %s/%s: %w", bucket, key, err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("finalize upload %s/%s: %w", bucket, key, ErrPreconditionFailed)
		}
		return fmt.Errorf("finalize upload %s/%s: %w", bucket, key, err)
	}

	return nil
}

// FetchFromGCS downloads the bytes behind a gs:// URI.
func (c *Client) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, key, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}
	obj, err := c.ReadObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: %w", err)
	}
	return obj.Data, nil
}

// ParseURI splits a URI such as gs://my-bucket/path/to/file.eml into bucket
// and object name.
func ParseURI(gcsURI string) (bucket, key string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	return parts[0], parts[1], nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var _ ObjectStore = (*Client)(nil)
