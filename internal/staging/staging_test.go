package staging

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stringBlob(name, content string) Blob {
	return Blob{
		Name: name,
		Size: int64(len(content)),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestStage(t *testing.T) {
	root := t.TempDir()
	c := NewCollector(root, 10, 1024, nil)

	file, err := c.Stage(context.Background(), 42, "abc123", 0, stringBlob("report.pdf", "content"))
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if file.Name != "report.pdf" {
		t.Errorf("Name = %q", file.Name)
	}
	if file.Size != int64(len("content")) {
		t.Errorf("Size = %d", file.Size)
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("reading staged file: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("staged content = %q", data)
	}

	// Layout: root/date/user/ticket/name.
	rel, err := filepath.Rel(root, file.Path)
	if err != nil {
		t.Fatalf("rel: %v", err)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 4 {
		t.Fatalf("path depth = %d (%s), want 4", len(parts), rel)
	}
	if parts[1] != "42" || parts[2] != "abc123" || parts[3] != "report.pdf" {
		t.Errorf("unexpected layout: %v", parts)
	}
}

func TestStageCountLimit(t *testing.T) {
	c := NewCollector(t.TempDir(), 10, 1024, nil)

	_, err := c.Stage(context.Background(), 1, "t", 10, stringBlob("11th.txt", "x"))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	if vErr.Reason != TooMany {
		t.Errorf("Reason = %q, want TooMany", vErr.Reason)
	}
}

func TestStageSizeLimitNoWrite(t *testing.T) {
	root := t.TempDir()
	c := NewCollector(root, 10, 5, nil)

	opened := false
	blob := Blob{
		Name: "big.bin",
		Size: 6,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			opened = true
			return io.NopCloser(strings.NewReader("oversized")), nil
		},
	}

	_, err := c.Stage(context.Background(), 1, "t", 0, blob)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	if vErr.Reason != TooLarge {
		t.Errorf("Reason = %q, want TooLarge", vErr.Reason)
	}
	if opened {
		t.Error("blob should not be opened on rejection")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging area should be empty after rejection, found %d entries", len(entries))
	}
}

func TestStageDownloadFailureCleansUp(t *testing.T) {
	root := t.TempDir()
	c := NewCollector(root, 10, 1024, nil)

	blob := Blob{
		Name: "flaky.txt",
		Size: 10,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(failingReader{}), nil
		},
	}

	_, err := c.Stage(context.Background(), 1, "t", 0, blob)
	if err == nil {
		t.Fatal("expected error")
	}

	var found []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			found = append(found, path)
		}
		return nil
	})
	if len(found) != 0 {
		t.Errorf("partial file left behind: %v", found)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"  spaced name.txt ", "spaced_name.txt"},
		{"../../etc/passwd", "passwd"},
		{"photo (1).jpg", "photo__1_.jpg"},
		{"...", "file"},
		{"", "file"},
		{"résumé.doc", "r_sum_.doc"},
	}
	for _, tt := range tests {
		if got := SafeFilename(tt.in); got != tt.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeFilenameLength(t *testing.T) {
	long := strings.Repeat("a", 200) + ".txt"
	got := SafeFilename(long)
	if len(got) > 128 {
		t.Errorf("len = %d, want <= 128", len(got))
	}
	if !strings.HasSuffix(got, ".txt") {
		t.Errorf("extension lost: %q", got)
	}
}

func TestNewTicketID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewTicketID()
		if len(id) != 8 {
			t.Fatalf("ticket id %q has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate ticket id %q", id)
		}
		seen[id] = true
	}
}
