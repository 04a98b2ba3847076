// Package exporter writes rendered exports to a local file or a GCS bucket.
package exporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

// Render produces the exported document.
type Render func(io.Writer) error

// Sink is a destination of an export.
type Sink interface {
	Write(ctx context.Context, contentType string, render Render) error
	String() string
}

// FileSink replaces a local file atomically, so readers never see a partial export.
type FileSink struct {
	Path string
}

func (s FileSink) Write(ctx context.Context, _ string, render Render) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := atomic.WriteFile(s.Path, &buf); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}

func (s FileSink) String() string {
	return s.Path
}

// GCSSink uploads to an object in a Google Cloud Storage bucket.
type GCSSink struct {
	Client *storage.Client
	Bucket string
	Object string
}

func (s GCSSink) Write(ctx context.Context, contentType string, render Render) error {
	// canceling the writer context aborts the upload
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.Client.Bucket(s.Bucket).Object(s.Object).NewWriter(ctx)
	w.ContentType = contentType
	if err := render(w); err != nil {
		cancel()
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", s, err)
	}
	return nil
}

func (s GCSSink) String() string {
	return "gs://" + s.Bucket + "/" + s.Object
}

// ParseGCS splits a gs://bucket/object URI.
func ParseGCS(uri string) (bucket, object string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "gs" {
		return "", "", fmt.Errorf("path %s must have 'gs' scheme", uri)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("path %s must have bucket", uri)
	}
	object = strings.TrimPrefix(parsed.Path, "/")
	if object == "" {
		return "", "", fmt.Errorf("path %s must name an object", uri)
	}
	return parsed.Host, object, nil
}

// Open returns the sink for out: a gs:// URI or a local path. The returned
// close function releases the storage client, if any.
func Open(ctx context.Context, out, creds string) (Sink, func() error, error) {
	if !strings.HasPrefix(out, "gs://") {
		return FileSink{Path: out}, func() error { return nil }, nil
	}
	bucket, object, err := ParseGCS(out)
	if err != nil {
		return nil, nil, fmt.Errorf("parse output uri %v: %w", out, err)
	}
	if creds != "" {
		if err := os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", creds); err != nil {
			return nil, nil, fmt.Errorf("set env for credential: %w", err)
		}
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create gs client: %w", err)
	}
	return GCSSink{Client: client, Bucket: bucket, Object: object}, client.Close, nil
}

// Export renders into sink and logs the outcome.
func Export(ctx context.Context, logger *zap.Logger, sink Sink, contentType string, render Render) error {
	if err := sink.Write(ctx, contentType, render); err != nil {
		return fmt.Errorf("export to %s: %w", sink, err)
	}
	logger.Info("export written", zap.Stringer("destination", sink))
	return nil
}
