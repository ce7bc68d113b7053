package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/artifactory-cleaner/internal/models"
	"go.uber.org/zap"
)

// Archive integrity failures, wrapped in *ArchiveError.
var (
	ErrArchiveUnsafePath       = errors.New("artifact path escapes the archive directory")
	ErrArchiveNotWritten       = errors.New("archive file was not written")
	ErrArchiveEmpty            = errors.New("archive file is empty")
	ErrArchiveSizeMismatch     = errors.New("archive file size mismatch")
	ErrArchiveChecksumMismatch = errors.New("archive file checksum mismatch")
)

// ArchiveError reports why an artifact could not be archived.
type ArchiveError struct {
	Artifact string
	Path     string
	Err      error
	Detail   string
}

func (e *ArchiveError) Error() string {
	msg := fmt.Sprintf("archive %s to %s: %v", e.Artifact, e.Path, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// ArchivePath returns where Archive stores a under root: root joined with
// the artifact's path inside its repository.
func ArchivePath(root string, a *models.Artifact) (string, error) {
	rel := filepath.FromSlash(a.RelativePath())
	if rel == "" {
		return "", &ArchiveError{Artifact: a.String(), Path: root, Err: ErrArchiveUnsafePath, Detail: "empty path"}
	}
	cleanRoot := filepath.Clean(root)
	dest := filepath.Join(cleanRoot, rel)
	if dest == cleanRoot || !strings.HasPrefix(dest, cleanRoot+string(filepath.Separator)) {
		return "", &ArchiveError{Artifact: a.String(), Path: dest, Err: ErrArchiveUnsafePath}
	}
	return dest, nil
}

// Archive downloads a into root, mirroring its repository path, and
// verifies the copy: the file must exist, be non-empty and match the
// declared size, and its sha256 must match when the artifact carries one.
// It returns the path of the verified copy.
func (c *Controller) Archive(ctx context.Context, a *models.Artifact, root string) (string, error) {
	dest, err := ArchivePath(root, a)
	if err != nil {
		return "", err
	}

	start := c.clock.Now()
	err = c.retry(ctx, "download "+a.URI, func(ctx context.Context) error {
		return c.svc.Download(ctx, a, dest)
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", a, err)
	}
	c.logger.Debug("artifact downloaded",
		zap.Stringer("artifact", a),
		zap.String("path", dest),
		zap.Int64("size", a.Size),
		zap.Duration("elapsed", c.clock.Now().Sub(start)))

	if err := verifyArchive(a, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func verifyArchive(a *models.Artifact, path string) error {
	fail := func(err error, detail string) error {
		return &ArchiveError{Artifact: a.String(), Path: path, Err: err, Detail: detail}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(ErrArchiveNotWritten, err.Error())
	}
	if !info.Mode().IsRegular() {
		return fail(ErrArchiveNotWritten, "not a regular file")
	}
	if info.Size() == 0 {
		return fail(ErrArchiveEmpty, "")
	}
	if info.Size() != a.Size {
		return fail(ErrArchiveSizeMismatch, fmt.Sprintf("%d != %d", info.Size(), a.Size))
	}

	if a.Checksums.SHA256 == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fail(ErrArchiveNotWritten, err.Error())
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fail(ErrArchiveNotWritten, err.Error())
	}
	if sum := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(sum, a.Checksums.SHA256) {
		return fail(ErrArchiveChecksumMismatch, fmt.Sprintf("%s != %s", sum, a.Checksums.SHA256))
	}
	return nil
}
