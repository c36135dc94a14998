package intake

import "github.com/DelureDev/Bitrix-task-bot/internal/staging"

// ReplyKind tells the transport layer what to say next. The engine never
// formats user-facing text; it only reports what happened.
type ReplyKind int

const (
	// ReplyNone means no session-related response is owed.
	ReplyNone ReplyKind = iota
	// ReplyAskTitle prompts for the task title.
	ReplyAskTitle
	// ReplyTitleEmpty re-prompts after blank title input.
	ReplyTitleEmpty
	// ReplyAskDescription prompts for the description.
	ReplyAskDescription
	// ReplyDescriptionEmpty re-prompts after blank description input.
	ReplyDescriptionEmpty
	// ReplyAskAttachments invites file uploads.
	ReplyAskAttachments
	// ReplyAttachmentStaged acknowledges a staged file (Name is set).
	ReplyAttachmentStaged
	// ReplyAttachmentRejected reports a limit violation (Rejection is set).
	ReplyAttachmentRejected
	// ReplyConfirmSummary shows the draft summary before creation
	// (Title and FileCount are set).
	ReplyConfirmSummary
	// ReplyCanceled confirms the session was discarded.
	ReplyCanceled
	// ReplyNoSession tells the user there is nothing in progress.
	ReplyNoSession
	// ReplyUnexpectedInput re-prompts with what the current step expects
	// (State is set).
	ReplyUnexpectedInput
)

// Reply is the engine's answer to one inbound event.
type Reply struct {
	Kind      ReplyKind
	Name      string
	Rejection *staging.ValidationError
	Title     string
	FileCount int
	State     State
}
