package upload

import (
	"context"
	"sync"
	"testing"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
)

// fakeUploader scripts per-file behavior and tracks concurrency.
type fakeUploader struct {
	mu        sync.Mutex
	attempts  map[string]int
	responses func(name string, attempt int) (int, error)
	inFlight  int
	maxFlight int
}

func newFakeUploader(responses func(name string, attempt int) (int, error)) *fakeUploader {
	return &fakeUploader{attempts: make(map[string]int), responses: responses}
}

func (f *fakeUploader) UploadToFolder(ctx context.Context, folderID int, localPath, displayName string) (int, error) {
	f.mu.Lock()
	f.attempts[displayName]++
	attempt := f.attempts[displayName]
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()

	id, err := f.responses(displayName, attempt)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return id, err
}

func files(names ...string) []staging.StagedFile {
	out := make([]staging.StagedFile, len(names))
	for i, name := range names {
		out[i] = staging.StagedFile{Name: name, Path: "/staging/" + name, Size: 1}
	}
	return out
}

var retryableErr = &bitrix.Error{Code: "HTTP_503", Description: "Service Unavailable"}
var terminalErr = &bitrix.Error{Code: "ACCESS_DENIED", Description: "Access to the folder is denied"}

func TestUploadAllEmpty(t *testing.T) {
	called := false
	up := newFakeUploader(func(string, int) (int, error) {
		called = true
		return 0, nil
	})
	result := New(up, 1, 2, 2, nil).UploadAll(context.Background(), nil)
	if len(result.FileIDs) != 0 || len(result.Failed) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
	if called {
		t.Error("uploader should not be called for empty input")
	}
}

func TestUploadAllSuccess(t *testing.T) {
	ids := map[string]int{"a.txt": 11, "b.txt": 22, "c.txt": 33}
	up := newFakeUploader(func(name string, attempt int) (int, error) {
		return ids[name], nil
	})

	result := New(up, 1, 2, 2, nil).UploadAll(context.Background(), files("a.txt", "b.txt", "c.txt"))
	want := []int{11, 22, 33}
	if len(result.FileIDs) != 3 {
		t.Fatalf("FileIDs = %v", result.FileIDs)
	}
	for i, id := range want {
		if result.FileIDs[i] != id {
			t.Errorf("FileIDs[%d] = %d, want %d (input order)", i, result.FileIDs[i], id)
		}
	}
	if len(result.Failed) != 0 {
		t.Errorf("Failed = %v", result.Failed)
	}
}

func TestUploadAllRetriesExhausted(t *testing.T) {
	up := newFakeUploader(func(name string, attempt int) (int, error) {
		return 0, retryableErr
	})

	result := New(up, 1, 2, 3, nil).UploadAll(context.Background(), files("a.txt", "b.txt"))
	if len(result.FileIDs) != 0 {
		t.Errorf("FileIDs = %v, want none", result.FileIDs)
	}
	if len(result.Failed) != 2 || result.Failed[0] != "a.txt" || result.Failed[1] != "b.txt" {
		t.Errorf("Failed = %v, want input order", result.Failed)
	}
	for name, n := range up.attempts {
		if n != 3 {
			t.Errorf("%s attempted %d times, want exactly 3", name, n)
		}
	}
}

func TestUploadAllTerminalFailureNoRetry(t *testing.T) {
	up := newFakeUploader(func(name string, attempt int) (int, error) {
		return 0, terminalErr
	})

	result := New(up, 1, 2, 5, nil).UploadAll(context.Background(), files("a.txt"))
	if !result.AllFailed() {
		t.Errorf("result = %+v, want all failed", result)
	}
	if up.attempts["a.txt"] != 1 {
		t.Errorf("attempts = %d, want 1 (terminal error)", up.attempts["a.txt"])
	}
}

func TestUploadAllMixedOutcome(t *testing.T) {
	up := newFakeUploader(func(name string, attempt int) (int, error) {
		switch name {
		case "ok.txt":
			return 99, nil
		default:
			return 0, retryableErr
		}
	})

	result := New(up, 1, 2, 2, nil).UploadAll(context.Background(), files("ok.txt", "bad.txt"))
	if len(result.FileIDs) != 1 || result.FileIDs[0] != 99 {
		t.Errorf("FileIDs = %v, want [99]", result.FileIDs)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "bad.txt" {
		t.Errorf("Failed = %v, want [bad.txt]", result.Failed)
	}
	if up.attempts["ok.txt"] != 1 {
		t.Errorf("ok.txt attempts = %d, want 1 (success short-circuits)", up.attempts["ok.txt"])
	}
	if up.attempts["bad.txt"] != 2 {
		t.Errorf("bad.txt attempts = %d, want 2", up.attempts["bad.txt"])
	}
}

func TestUploadAllRecoversOnRetry(t *testing.T) {
	up := newFakeUploader(func(name string, attempt int) (int, error) {
		if attempt == 1 {
			return 0, retryableErr
		}
		return 7, nil
	})

	result := New(up, 1, 2, 2, nil).UploadAll(context.Background(), files("flaky.txt"))
	if len(result.FileIDs) != 1 || result.FileIDs[0] != 7 {
		t.Errorf("FileIDs = %v, want [7]", result.FileIDs)
	}
	if len(result.Failed) != 0 {
		t.Errorf("Failed = %v", result.Failed)
	}
}

func TestUploadAllBoundedConcurrency(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan string, 16)
	up := newFakeUploader(func(name string, attempt int) (int, error) {
		started <- name
		<-gate
		return 1, nil
	})

	done := make(chan Result, 1)
	go func() {
		done <- New(up, 1, 2, 1, nil).UploadAll(context.Background(), files("a", "b", "c", "d", "e"))
	}()

	// With 2 slots, exactly 2 uploads start before any finishes.
	<-started
	<-started
	select {
	case name := <-started:
		t.Fatalf("third upload %q started before a slot freed", name)
	default:
	}

	close(gate)
	result := <-done

	if len(result.FileIDs) != 5 {
		t.Errorf("FileIDs = %v, want 5 entries", result.FileIDs)
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.maxFlight > 2 {
		t.Errorf("max concurrent uploads = %d, want <= 2", up.maxFlight)
	}
}
