// Package qart archives batch artifacts (scripts, logs, markers, summaries
// and reports) to S3-compatible storage.
package qart

import (
	"context"
	"errors"
	"io"
	"path"
	"time"
)

var (
	ErrNotFound      = errors.New("artifact not found")
	ErrBucketMissing = errors.New("bucket does not exist")
)

// Artifact is a stored object.
type Artifact struct {
	Key          string            `json:"key"` // e.g. "batches/motifs/PAX9_0/slurm-123.log"
	Bucket       string            `json:"bucket"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type"`
	LastModified time.Time         `json:"last_modified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Store is the artifact storage used by the archiver.
type Store interface {
	// Upload stores size bytes from reader under key. size may be -1 when
	// unknown.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string, metadata map[string]string) (*Artifact, error)

	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// List lists all artifacts under prefix.
	List(ctx context.Context, prefix string) ([]*Artifact, error)

	// EnsureBucket creates the bucket if it does not exist.
	EnsureBucket(ctx context.Context) error
}

// BatchPrefix returns the key prefix of a batch.
func BatchPrefix(batch string) string {
	return "batches/" + batch + "/"
}

// BatchArtifactKey returns the key of a file of a job. An empty job names a
// batch-level file such as a report.
func BatchArtifactKey(batch, job, filename string) string {
	if job == "" {
		return BatchPrefix(batch) + filename
	}
	return BatchPrefix(batch) + path.Join(job, filename)
}
