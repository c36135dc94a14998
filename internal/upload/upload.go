// Package upload pushes staged attachments to Bitrix Disk under bounded
// concurrency, retrying transient failures per file and aggregating the
// outcomes in input order.
package upload

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/metrics"
	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
)

// Uploader is the slice of the Bitrix client the orchestrator needs.
type Uploader interface {
	UploadToFolder(ctx context.Context, folderID int, localPath, displayName string) (int, error)
}

// Result partitions the input files by outcome. Both slices preserve the
// input order, not completion order.
type Result struct {
	// FileIDs are the Disk object ids of successfully uploaded files.
	FileIDs []int
	// Failed are the display names of files whose uploads failed.
	Failed []string
}

// AllFailed reports whether files were given and none uploaded.
func (r Result) AllFailed() bool {
	return len(r.FileIDs) == 0 && len(r.Failed) > 0
}

// Orchestrator fans staged files out to the Disk API.
type Orchestrator struct {
	uploader    Uploader
	folderID    int
	parallelism int
	maxAttempts int
	logger      *zap.Logger
}

// New creates an Orchestrator. Parallelism and maxAttempts are clamped to
// at least 1.
func New(uploader Uploader, folderID, parallelism, maxAttempts int, logger *zap.Logger) *Orchestrator {
	if parallelism < 1 {
		parallelism = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		uploader:    uploader,
		folderID:    folderID,
		parallelism: parallelism,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// UploadAll uploads every file, at most parallelism at a time. Each file
// is independent: a permanent failure on one never aborts the others. A
// failed attempt is retried only while attempts remain and the failure
// classifies as retryable.
func (o *Orchestrator) UploadAll(ctx context.Context, files []staging.StagedFile) Result {
	if len(files) == 0 {
		return Result{}
	}

	slots := o.parallelism
	if slots > len(files) {
		slots = len(files)
	}
	semaphore := make(chan struct{}, slots)

	type outcome struct {
		fileID int
		ok     bool
	}
	outcomes := make([]outcome, len(files))

	var wg sync.WaitGroup
	for i, file := range files {
		wg.Add(1)
		go func(i int, file staging.StagedFile) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			id, ok := o.uploadOne(ctx, file)
			outcomes[i] = outcome{fileID: id, ok: ok}
		}(i, file)
	}
	wg.Wait()

	var result Result
	for i, out := range outcomes {
		if out.ok {
			result.FileIDs = append(result.FileIDs, out.fileID)
		} else {
			result.Failed = append(result.Failed, files[i].Name)
		}
	}
	return result
}

// uploadOne drives the retry loop for a single file.
func (o *Orchestrator) uploadOne(ctx context.Context, file staging.StagedFile) (int, bool) {
	for attempt := 1; ; attempt++ {
		o.logger.Info("disk upload start",
			zap.String("name", file.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.maxAttempts),
			zap.Int("folder_id", o.folderID))
		metrics.UploadAttempts.Inc()

		id, err := o.uploader.UploadToFolder(ctx, o.folderID, file.Path, file.Name)
		if err == nil {
			o.logger.Info("disk upload success",
				zap.String("name", file.Name),
				zap.Int("file_id", id),
				zap.Int("attempt", attempt))
			metrics.Uploads.WithLabelValues("success").Inc()
			return id, true
		}

		if attempt < o.maxAttempts && bitrix.IsRetryable(err) {
			o.logger.Warn("disk upload retry",
				zap.String("name", file.Name),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		o.logger.Error("disk upload failed",
			zap.String("name", file.Name),
			zap.Int("attempt", attempt),
			zap.Error(err))
		metrics.Uploads.WithLabelValues("failure").Inc()
		return 0, false
	}
}
