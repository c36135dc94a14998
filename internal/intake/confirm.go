package intake

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/metrics"
)

// ConfirmStatus is the overall outcome of one confirm event.
type ConfirmStatus int

const (
	// ConfirmCreated means the task exists; TaskID is set.
	ConfirmCreated ConfirmStatus = iota
	// ConfirmNoSession means there was nothing to confirm.
	ConfirmNoSession
	// ConfirmIncomplete means the draft failed re-validation (missing
	// title or description).
	ConfirmIncomplete
	// ConfirmNotLinked means the user has no linked Bitrix identity.
	ConfirmNotLinked
	// ConfirmUploadsFailed means every attachment upload failed; no task
	// was created.
	ConfirmUploadsFailed
	// ConfirmSubmitFailed means Bitrix rejected the task creation after
	// the single creator fallback.
	ConfirmSubmitFailed
	// ConfirmWrongState means the session has not reached the summary
	// step; the draft is kept and State names the step it is on.
	ConfirmWrongState
)

// ConfirmResult reports what one confirm event produced.
type ConfirmResult struct {
	Status      ConfirmStatus
	TaskID      int
	Uploaded    int
	FailedFiles []string
	// State is set with ConfirmWrongState so the transport can restate
	// what the current step expects.
	State State
}

// Progress is an intermediate notification emitted while a confirm is in
// flight, so the transport can keep the user informed.
type Progress int

const (
	// ProgressUploading precedes the attachment upload phase.
	ProgressUploading Progress = iota
	// ProgressPartialUpload reports that some uploads failed but the
	// task will be created with the rest.
	ProgressPartialUpload
	// ProgressCreating precedes the task creation call.
	ProgressCreating
)

// ProgressFunc receives in-flight notifications. The file count and
// failed names accompany the phases that have them.
type ProgressFunc func(p Progress, fileCount int, failed []string)

// Confirm runs the full submission pipeline for the user's session:
// re-validate the draft, upload staged attachments, create the task.
// Confirm is only recognized once the session has seen the summary; a
// leftover confirm button pressed mid-flow re-prompts instead of acting.
// Once accepted, the session always ends here, whatever the outcome; a
// confirm is never retried automatically.
func (e *Engine) Confirm(ctx context.Context, userID int64, initiator string, progress ProgressFunc) ConfirmResult {
	sess := e.store.Get(userID)
	if sess == nil {
		return ConfirmResult{Status: ConfirmNoSession}
	}
	if sess.State != StateConfirm {
		return ConfirmResult{Status: ConfirmWrongState, State: sess.State}
	}
	defer e.store.Clear(userID)

	if progress == nil {
		progress = func(Progress, int, []string) {}
	}

	// Defensive re-validation, independent of the per-step checks.
	if strings.TrimSpace(sess.Title) == "" || strings.TrimSpace(sess.Description) == "" {
		return ConfirmResult{Status: ConfirmIncomplete}
	}

	createdBy, err := e.links.Lookup(userID)
	if err != nil {
		e.logger.Error("link lookup failed", zap.Int64("tg_user_id", userID), zap.Error(err))
	}
	if createdBy == 0 {
		return ConfirmResult{Status: ConfirmNotLinked}
	}

	var fileIDs []int
	var failed []string
	if len(sess.Files) > 0 {
		progress(ProgressUploading, len(sess.Files), nil)
		result := e.uploads.UploadAll(ctx, sess.Files)
		fileIDs, failed = result.FileIDs, result.Failed

		if result.AllFailed() {
			metrics.TaskFailures.Inc()
			return ConfirmResult{Status: ConfirmUploadsFailed, FailedFiles: failed}
		}
		if len(failed) > 0 {
			progress(ProgressPartialUpload, len(fileIDs), failed)
		}
	}

	progress(ProgressCreating, len(fileIDs), nil)

	req := bitrix.TaskRequest{
		Title:         sess.Title,
		Description:   composeDescription(sess.Description, initiator),
		ResponsibleID: e.opts.ResponsibleID,
		GroupID:       e.opts.GroupID,
		Priority:      e.opts.Priority,
		CreatedBy:     createdBy,
		FileIDs:       fileIDs,
	}

	taskID, err := e.submitter.CreateTask(ctx, req)
	if err != nil {
		// Some portals refuse CREATED_BY for webhook calls. Retry exactly
		// once without it; any further failure is terminal.
		var apiErr *bitrix.Error
		if errors.As(err, &apiErr) && req.CreatedBy > 0 {
			e.logger.Warn("bitrix rejected creator field, retrying without it",
				zap.Int("created_by", req.CreatedBy),
				zap.Error(err))
			fallback := req
			fallback.CreatedBy = 0
			taskID, err = e.submitter.CreateTask(ctx, fallback)
		}
		if err != nil {
			e.logger.Error("task creation failed",
				zap.Int64("tg_user_id", userID),
				zap.String("ticket_id", sess.TicketID),
				zap.Error(err))
			metrics.TaskFailures.Inc()
			return ConfirmResult{Status: ConfirmSubmitFailed, Uploaded: len(fileIDs), FailedFiles: failed}
		}
	}

	e.logger.Info("task created",
		zap.Int64("tg_user_id", userID),
		zap.String("ticket_id", sess.TicketID),
		zap.Int("task_id", taskID),
		zap.Int("uploaded", len(fileIDs)),
		zap.Int("failed", len(failed)))
	metrics.TasksCreated.Inc()

	return ConfirmResult{
		Status:      ConfirmCreated,
		TaskID:      taskID,
		Uploaded:    len(fileIDs),
		FailedFiles: failed,
	}
}

// composeDescription appends the initiator contact block to the user's
// description so the assignee can reach back over Telegram.
func composeDescription(userDesc, initiator string) string {
	parts := []string{strings.TrimSpace(userDesc)}
	if initiator = strings.TrimSpace(initiator); initiator != "" {
		parts = append(parts, "", "Initiator contact:", "Telegram: "+initiator)
	}
	return strings.Join(parts, "\n")
}
