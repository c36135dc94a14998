package intake

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/metrics"
	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
	"github.com/DelureDev/Bitrix-task-bot/internal/upload"
)

// Submitter is the slice of the Bitrix client the engine uses to create
// tasks.
type Submitter interface {
	CreateTask(ctx context.Context, req bitrix.TaskRequest) (int, error)
}

// LinkLookup resolves a Telegram user to a linked Bitrix user id.
// A zero id means no link exists.
type LinkLookup interface {
	Lookup(tgUserID int64) (int, error)
}

// Options carries the task defaults applied to every submission.
type Options struct {
	ResponsibleID int
	GroupID       int
	Priority      int
}

// Engine owns the session store and drives the intake state machine.
// Events for a single user must be delivered sequentially; the transport
// layer's update loop guarantees that.
type Engine struct {
	store     *Store
	collector *staging.Collector
	uploads   *upload.Orchestrator
	submitter Submitter
	links     LinkLookup
	opts      Options
	logger    *zap.Logger
}

// NewEngine wires the intake pipeline together.
func NewEngine(collector *staging.Collector, uploads *upload.Orchestrator, submitter Submitter, links LinkLookup, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     NewStore(),
		collector: collector,
		uploads:   uploads,
		submitter: submitter,
		links:     links,
		opts:      opts,
		logger:    logger,
	}
}

// Store exposes the session store, mainly for the transport layer to
// check whether a user has a live session.
func (e *Engine) Store() *Store {
	return e.store
}

// Start begins a fresh intake session, discarding any prior one.
func (e *Engine) Start(userID int64) Reply {
	sess := e.store.Start(userID)
	e.logger.Info("intake session started",
		zap.Int64("tg_user_id", userID),
		zap.String("ticket_id", sess.TicketID))
	return Reply{Kind: ReplyAskTitle}
}

// Cancel discards the user's session. In-flight uploads, if any, run to
// completion; their results are discarded with the session.
func (e *Engine) Cancel(userID int64) Reply {
	e.store.Clear(userID)
	return Reply{Kind: ReplyCanceled}
}

// HandleText processes free-form text for whichever step expects it.
func (e *Engine) HandleText(userID int64, text string) Reply {
	sess := e.store.Get(userID)
	if sess == nil {
		return Reply{Kind: ReplyNoSession}
	}

	text = strings.TrimSpace(text)
	switch sess.State {
	case StateTitle:
		if text == "" {
			return Reply{Kind: ReplyTitleEmpty}
		}
		sess.Title = text
		sess.State = StateDescription
		return Reply{Kind: ReplyAskDescription}

	case StateDescription:
		if text == "" {
			return Reply{Kind: ReplyDescriptionEmpty}
		}
		sess.Description = text
		sess.State = StateAttachments
		return Reply{Kind: ReplyAskAttachments}

	default:
		// Text is not what this step expects; restate the expectation
		// instead of silently dropping the session.
		return Reply{Kind: ReplyUnexpectedInput, State: sess.State}
	}
}

// HandleAttachment stages one incoming file for the session.
func (e *Engine) HandleAttachment(ctx context.Context, userID int64, blob staging.Blob) Reply {
	sess := e.store.Get(userID)
	if sess == nil {
		return Reply{Kind: ReplyNoSession}
	}
	if sess.State != StateAttachments {
		return Reply{Kind: ReplyUnexpectedInput, State: sess.State}
	}

	file, err := e.collector.Stage(ctx, userID, sess.TicketID, len(sess.Files), blob)
	if err != nil {
		var vErr *staging.ValidationError
		if errors.As(err, &vErr) {
			metrics.AttachmentsRejected.WithLabelValues(string(vErr.Reason)).Inc()
			return Reply{Kind: ReplyAttachmentRejected, Rejection: vErr}
		}
		e.logger.Error("staging attachment failed",
			zap.Int64("tg_user_id", userID),
			zap.String("name", blob.Name),
			zap.Error(err))
		// Download failures are recoverable; stay in place and let the
		// user resend the file.
		return Reply{Kind: ReplyAttachmentRejected, Rejection: nil, Name: blob.Name}
	}

	sess.Files = append(sess.Files, file)
	metrics.AttachmentsStaged.Inc()
	return Reply{Kind: ReplyAttachmentStaged, Name: file.Name, FileCount: len(sess.Files)}
}

// FinishAttachments moves a session from the attachment step to the
// confirmation step.
func (e *Engine) FinishAttachments(userID int64) Reply {
	sess := e.store.Get(userID)
	if sess == nil {
		return Reply{Kind: ReplyNoSession}
	}
	if sess.State != StateAttachments {
		return Reply{Kind: ReplyUnexpectedInput, State: sess.State}
	}
	sess.State = StateConfirm
	return Reply{Kind: ReplyConfirmSummary, Title: sess.Title, FileCount: len(sess.Files)}
}
