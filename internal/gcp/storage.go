package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Artifacts writes run outputs into a single GCS bucket. A nil *Artifacts discards writes.
type Artifacts struct {
	client *storage.Client
	bucket string
}

// NewArtifacts returns nil when bucket is empty, which disables artifact storage.
func NewArtifacts(client *storage.Client, bucket string) *Artifacts {
	if client == nil || bucket == "" {
		return nil
	}
	return &Artifacts{client: client, bucket: bucket}
}

// URI returns the gs:// URI of an object in the artifacts bucket.
func (a *Artifacts) URI(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName)
}

// Save stores content under objectName and returns its gs:// URI.
func (a *Artifacts) Save(ctx context.Context, objectName string, content []byte) (string, error) {
	if a == nil {
		return "", nil
	}
	if err := SaveToGCSAtomically(ctx, a.client.Bucket(a.bucket), objectName, content); err != nil {
		return "", err
	}
	return a.URI(objectName), nil
}

// Read returns the content of a gs:// URI.
func (a *Artifacts) Read(ctx context.Context, uri string) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("artifact storage is not configured")
	}
	bucket, object, err := ParseGCSUri(uri)
	if err != nil {
		return nil, err
	}
	return ReadGCSObject(ctx, a.client.Bucket(bucket), object)
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", objectName, err)
	}

	// The precondition is evaluated when the upload is finalized.
	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("Object already exists. Skipping write.", "object", objectName)
			return nil
		}
		slog.Error("Failed to finalize GCS write.", "object", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// ReadGCSObject reads a whole object into memory.
func ReadGCSObject(ctx context.Context, bucket *storage.BucketHandle, objectName string) ([]byte, error) {
	reader, err := bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", objectName, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", objectName, err)
	}
	return data, nil
}

// ParseGCSUri splits gs://bucket/object into its parts.
func ParseGCSUri(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gs:// URI: %q", uri)
	}
	return bucket, object, nil
}
