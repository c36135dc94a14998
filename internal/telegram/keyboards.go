package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Main menu button labels. These double as message text the router
// matches on, so they must stay in sync with mainMenu below.
const (
	btnCreate  = "📝 New task"
	btnLink    = "🔗 Link profile"
	btnMyTasks = "📋 My tasks"
	btnHelp    = "ℹ️ How to find my ID?"
)

// Callback tokens carried by inline buttons.
const (
	cbStartTask       = "start_task"
	cbAttachmentsDone = "attachments_done"
	cbConfirmCreate   = "confirm_create"
	cbCancelTask      = "cancel_task"
)

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCreate),
			tgbotapi.NewKeyboardButton(btnLink),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnMyTasks),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)
}

func attachmentsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Done ✅", cbAttachmentsDone),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel ❌", cbCancelTask),
		),
	)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Create ✅", cbConfirmCreate),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel ❌", cbCancelTask),
		),
	)
}
