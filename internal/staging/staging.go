// Package staging validates incoming attachments and materializes them
// into the local staging area that feeds Disk uploads.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StagedFile is a locally buffered attachment awaiting upload.
// Immutable once created; sessions keep them in arrival order.
type StagedFile struct {
	// Name is the original display name, used for Disk uploads and
	// failure reporting.
	Name string
	// Path is the local staging location.
	Path string
	// Size is the number of bytes written.
	Size int64
}

// Blob describes an incoming attachment before staging. Open defers the
// actual download until the size and count checks have passed.
type Blob struct {
	Name string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Reason identifies which limit a rejected attachment violated.
type Reason string

const (
	// TooMany means the session already holds the maximum attachments.
	TooMany Reason = "too_many"
	// TooLarge means the reported size exceeds the per-file ceiling.
	TooLarge Reason = "too_large"
)

// ValidationError is a recoverable rejection; the session stays where it
// is and the user is re-prompted.
type ValidationError struct {
	Reason Reason
	Limit  int64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case TooMany:
		return fmt.Sprintf("attachment limit reached (%d per task)", e.Limit)
	case TooLarge:
		return fmt.Sprintf("attachment exceeds size limit (%d bytes)", e.Limit)
	default:
		return "attachment rejected"
	}
}

// Collector stages attachments under a root directory, partitioned by
// date, user and ticket so concurrent sessions never collide.
type Collector struct {
	root     string
	maxFiles int
	maxBytes int64
	logger   *zap.Logger
}

// NewCollector creates a Collector. maxFiles and maxBytes must be positive.
func NewCollector(root string, maxFiles int, maxBytes int64, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{root: root, maxFiles: maxFiles, maxBytes: maxBytes, logger: logger}
}

// MaxFiles returns the per-session attachment cap.
func (c *Collector) MaxFiles() int { return c.maxFiles }

// MaxBytes returns the per-file size ceiling.
func (c *Collector) MaxBytes() int64 { return c.maxBytes }

// Stage validates the blob against the session's current attachment count
// and the size ceiling, then downloads it into the staging area. Both
// checks happen before any I/O; a rejection leaves no file behind.
func (c *Collector) Stage(ctx context.Context, userID int64, ticketID string, staged int, blob Blob) (StagedFile, error) {
	if staged >= c.maxFiles {
		return StagedFile{}, &ValidationError{Reason: TooMany, Limit: int64(c.maxFiles)}
	}
	if blob.Size > c.maxBytes {
		return StagedFile{}, &ValidationError{Reason: TooLarge, Limit: c.maxBytes}
	}

	dir := filepath.Join(c.root,
		time.Now().Format("2006-01-02"),
		strconv.FormatInt(userID, 10),
		ticketID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return StagedFile{}, fmt.Errorf("creating staging dir: %w", err)
	}

	name := SafeFilename(blob.Name)
	path := filepath.Join(dir, name)

	reader, err := blob.Open(ctx)
	if err != nil {
		return StagedFile{}, fmt.Errorf("opening attachment %s: %w", blob.Name, err)
	}
	defer reader.Close()

	f, err := os.Create(path)
	if err != nil {
		return StagedFile{}, fmt.Errorf("creating staging file: %w", err)
	}
	written, err := io.Copy(f, reader)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return StagedFile{}, fmt.Errorf("writing attachment %s: %w", blob.Name, err)
	}

	c.logger.Debug("attachment staged",
		zap.String("name", blob.Name),
		zap.String("path", path),
		zap.Int64("bytes", written))

	return StagedFile{Name: blob.Name, Path: path, Size: written}, nil
}

// NewTicketID generates a process-unique ticket id for one intake session.
func NewTicketID() string {
	return uuid.New().String()[:8]
}

// SafeFilename reduces an arbitrary display name to something safe to put
// on the local filesystem: no path separators, no control characters, a
// bounded length, and never empty.
func SafeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return "file"
	}
	if len(cleaned) > 128 {
		ext := filepath.Ext(cleaned)
		if len(ext) > 16 {
			ext = ""
		}
		cleaned = cleaned[:128-len(ext)] + ext
	}
	return cleaned
}
