// Package storage holds the places a processed image can be downloaded to:
// a local directory or an S3 bucket.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pixelkit/bgremover/pkg/errors"
)

// FileSaver writes downloads into a directory
type FileSaver struct {
	dir string
}

// NewFileSaver creates a saver rooted at dir. The directory is created on first save.
func NewFileSaver(dir string) *FileSaver {
	if dir == "" {
		dir = "."
	}
	return &FileSaver{dir: dir}
}

// Save writes data to dir/name, replacing any existing file, and returns the path
func (s *FileSaver) Save(ctx context.Context, name, mediaType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}

	localPath := filepath.Join(s.dir, filepath.Base(name))

	// temp file + rename, so name only ever holds a complete image
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		slog.Error("local_file_creation_failed", "dir", s.dir, "error", err)
		return "", errors.Wrap(err, "failed to create local file")
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	writer := io.MultiWriter(tmp, hash)

	if _, err := writer.Write(data); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "failed to write file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close file")
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return "", errors.Wrap(err, "failed to move file into place")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	slog.Info("local_save_complete",
		"path", localPath,
		"media_type", mediaType,
		"size", len(data),
		"sha256", checksum[:16]+"...",
	)

	return localPath, nil
}
