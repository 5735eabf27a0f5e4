// Package artifact uploads run artifacts (report, logs, screenshots) to
// S3-compatible object storage. Uploads are best-effort: a storage failure is
// logged and never fails the run.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jkeller/pilot/internal/config"
	"github.com/jkeller/pilot/internal/models"
)

const uploadTimeout = 2 * time.Minute

// Logger is the logging surface the uploader needs.
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
}

type noopLogger struct{}

func (noopLogger) LogDebug(string) {}
func (noopLogger) LogInfo(string)  {}
func (noopLogger) LogWarn(string)  {}

// Uploader pushes run artifacts to one bucket under a per-run prefix.
type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	log    Logger
}

// NewUploader creates an Uploader from the artifact configuration. Returns an
// error when the endpoint is unreachable at client construction time.
func NewUploader(cfg config.ArtifactConfig, log Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("artifact upload is not configured")
	}
	if log == nil {
		log = noopLogger{}
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}, nil
}

// UploadRun uploads the report file and every listed artifact path under
// <prefix>/<run-id>/. Missing files and upload failures are logged; the
// first error is returned so callers can record that uploads were
// incomplete.
func (u *Uploader) UploadRun(ctx context.Context, report models.RunReport, paths []string) error {
	var firstErr error
	uploaded := 0

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			u.log.LogDebug(fmt.Sprintf("artifact %s not found, skipping", path))
			continue
		}

		key := u.objectKey(report.RunID, filepath.Base(path))
		if err := u.put(ctx, key, path); err != nil {
			u.log.LogWarn(fmt.Sprintf("artifact upload %s: %v", key, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uploaded++
	}

	if uploaded > 0 {
		u.log.LogInfo(fmt.Sprintf("uploaded %d artifacts to %s/%s",
			uploaded, u.bucket, u.objectKey(report.RunID, "")))
	}
	return firstErr
}

func (u *Uploader) put(ctx context.Context, key, path string) error {
	putCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := u.client.FPutObject(putCtx, u.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentTypeFor(path),
	})
	return err
}

// objectKey builds <prefix>/<run-id>/<name>, omitting empty segments.
func (u *Uploader) objectKey(runID, name string) string {
	parts := make([]string, 0, 3)
	if u.prefix != "" {
		parts = append(parts, u.prefix)
	}
	parts = append(parts, runID)
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, "/")
}

// contentTypeFor maps artifact extensions to MIME types.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".log", ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
