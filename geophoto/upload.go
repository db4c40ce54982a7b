package geophoto

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"gocloud.dev/blob"
)

// UploadOptions controls the chunked writer gocloud.dev/blob uses to
// stream an artifact to its destination bucket.
type UploadOptions struct {
	BufferSizeMB   int
	MaxConcurrency int
}

// DefaultUploadOptions matches the teacher's upload defaults.
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{BufferSizeMB: 8, MaxConcurrency: 5}
}

// UploadArtifact streams file (a finished MBTiles archive or a
// queue/photo-store snapshot) to bucketURL, which may be any
// gocloud.dev/blob-supported destination ("s3://...", "gs://...",
// "azblob://...", "file://...") (spec.md §6, "Artifact upload").
func UploadArtifact(ctx context.Context, logger *log.Logger, file, bucketURL string, opts UploadOptions) error {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return fmt.Errorf("geophoto: failed to open bucket: %w", err)
	}
	defer b.Close()

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("geophoto: failed to open artifact: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("geophoto: failed to stat artifact: %w", err)
	}
	bar := progressbar.Default(stat.Size(), "uploading "+file)

	key := filepath.Base(file)
	writerOpts := &blob.WriterOptions{
		BufferSize:     opts.BufferSizeMB * 1000 * 1000,
		MaxConcurrency: opts.MaxConcurrency,
	}
	w, err := b.NewWriter(ctx, key, writerOpts)
	if err != nil {
		return fmt.Errorf("geophoto: failed to obtain bucket writer: %w", err)
	}

	buffer := make([]byte, 16*1024*1024)
	for {
		n, readErr := f.Read(buffer)
		if n > 0 {
			if _, err := w.Write(buffer[:n]); err != nil {
				return fmt.Errorf("geophoto: failed to write to bucket: %w", err)
			}
			_ = bar.Add(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("geophoto: failed to read artifact: %w", readErr)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("geophoto: failed to close bucket writer: %w", err)
	}
	logger.Printf("geophoto: uploaded %s to %s", file, bucketURL)
	return nil
}
