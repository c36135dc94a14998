package telegram

import (
	"fmt"

	"github.com/DelureDev/Bitrix-task-bot/internal/intake"
	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
)

// renderReply turns an engine reply into message text plus an optional
// keyboard. An empty text means nothing needs to be sent.
func (b *Bot) renderReply(r intake.Reply) (string, interface{}) {
	switch r.Kind {
	case intake.ReplyAskTitle:
		return "OK. Send the task title:", nil
	case intake.ReplyTitleEmpty:
		return "The title is empty. Send the title again:", nil
	case intake.ReplyAskDescription:
		return "Now send the description (what to do, what is broken, any context):", nil
	case intake.ReplyDescriptionEmpty:
		return "The description is empty. Send the description again:", nil
	case intake.ReplyAskAttachments:
		return "Now you can send screenshots or files (several are fine). Press Done ✅ when finished.", attachmentsKeyboard()
	case intake.ReplyAttachmentStaged:
		return fmt.Sprintf("Saved: %s", r.Name), nil
	case intake.ReplyAttachmentRejected:
		return b.renderRejection(r), nil
	case intake.ReplyConfirmSummary:
		text := fmt.Sprintf("Check before creating:\n\nTitle: %s\nAttachments: %d\n\nPress Create ✅ or Cancel ❌.", r.Title, r.FileCount)
		return text, confirmKeyboard()
	case intake.ReplyCanceled:
		return "Canceled.", mainMenu()
	case intake.ReplyNoSession:
		return "No task in progress. Press \"" + btnCreate + "\" or send /task.", mainMenu()
	case intake.ReplyUnexpectedInput:
		return renderExpectation(r.State), nil
	default:
		return "", nil
	}
}

func (b *Bot) renderRejection(r intake.Reply) string {
	if r.Rejection == nil {
		return fmt.Sprintf("Couldn't save %s. Try sending it again.", r.Name)
	}
	switch r.Rejection.Reason {
	case staging.TooMany:
		return fmt.Sprintf("Attachment limit: %d per task. Press Done ✅.", r.Rejection.Limit)
	case staging.TooLarge:
		return fmt.Sprintf("File is too large. Maximum attachment size: %d MB.", r.Rejection.Limit/(1024*1024))
	default:
		return "Attachment rejected."
	}
}

// renderExpectation restates what the current step is waiting for.
func renderExpectation(state intake.State) string {
	switch state {
	case intake.StateAttachments:
		return "Send a file or photo, or press Done ✅."
	case intake.StateConfirm:
		return "Press Create ✅ or Cancel ❌."
	default:
		return "Send plain text, or /cancel to abort."
	}
}
