package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/hanko-field/carts/internal/services"
)

type objectWriterFactory func(ctx context.Context, bucket, object string) io.WriteCloser

// CleanupReportWriter uploads sweep reports as JSON objects to Cloud Storage.
type CleanupReportWriter struct {
	bucket    string
	newWriter objectWriterFactory
	logger    *zap.Logger
}

// NewCleanupReportWriter constructs a writer backed by the provided Cloud Storage client.
func NewCleanupReportWriter(client *gcs.Client, bucket string, logger *zap.Logger) (*CleanupReportWriter, error) {
	if client == nil {
		return nil, errors.New("storage report writer: client is required")
	}
	return newCleanupReportWriter(bucket, logger, func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		w.CacheControl = "no-store"
		return w
	})
}

func newCleanupReportWriter(bucket string, logger *zap.Logger, factory objectWriterFactory) (*CleanupReportWriter, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage report writer: bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupReportWriter{bucket: bucket, newWriter: factory, logger: logger}, nil
}

// WriteCleanupReport implements services.CleanupReporter.
func (w *CleanupReportWriter) WriteCleanupReport(ctx context.Context, report services.CleanupReport) error {
	object, err := CleanupReportPath(report.RunID, report.StartedAt)
	if err != nil {
		return err
	}

	writer := w.newWriter(ctx, w.bucket, object)
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: encode report %s: %w", object, err)
	}
	// Cloud Storage commits the object on Close; an error there means nothing was written.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage: upload gs://%s/%s: %w", w.bucket, object, err)
	}

	w.logger.Info("cleanup report uploaded",
		zap.String("bucket", w.bucket),
		zap.String("object", object),
		zap.Int("deleted", len(report.DeletedCartIDs)),
	)
	return nil
}

var _ services.CleanupReporter = (*CleanupReportWriter)(nil)
