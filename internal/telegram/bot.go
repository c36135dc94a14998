// Package telegram binds the intake engine to the Telegram Bot API: it
// translates updates into engine events and renders engine replies back
// into chat messages.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/intake"
	"github.com/DelureDev/Bitrix-task-bot/internal/linking"
	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
)

// Config holds the transport-level settings the bot needs beyond what the
// engine already owns.
type Config struct {
	AllowedUsers         []int64
	DefaultResponsibleID int
	PortalBase           string
	TaskURLTemplate      string
	MyTasks              bool
	MyTasksLimit         int
}

// TaskLister is the slice of the Bitrix client the my-tasks command uses.
type TaskLister interface {
	ListTasksCreatedBy(ctx context.Context, userID, limit int) ([]bitrix.Task, error)
}

// Bot runs the Telegram update loop. All updates are handled sequentially
// on one goroutine, which is what gives the intake engine its per-user
// ordering guarantee.
type Bot struct {
	api    *tgbotapi.BotAPI
	engine *intake.Engine
	links  *linking.Store
	tasks  TaskLister
	files  *http.Client
	cfg    Config
	logger *zap.Logger

	// Conversation bookkeeping outside the intake engine.
	awaitingLink map[int64]bool
	menuShown    map[int64]bool
}

// New creates a Bot. The files client downloads attachment content from
// Telegram's file servers.
func New(api *tgbotapi.BotAPI, engine *intake.Engine, links *linking.Store, tasks TaskLister, cfg Config, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:          api,
		engine:       engine,
		links:        links,
		tasks:        tasks,
		files:        &http.Client{},
		cfg:          cfg,
		logger:       logger,
		awaitingLink: make(map[int64]bool),
		menuShown:    make(map[int64]bool),
	}
}

// Run consumes updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	update := tgbotapi.NewUpdate(0)
	update.Timeout = 30
	updates := b.api.GetUpdatesChan(update)

	b.logger.Info("bot started, waiting for /start or /task",
		zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.AllowedUsers) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !b.allowed(userID) {
		b.send(chatID, "Access denied.", nil)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if msg.Document != nil || len(msg.Photo) > 0 {
		b.handleFileMessage(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if b.awaitingLink[userID] {
		b.handleLinkInput(chatID, userID, text)
		return
	}

	switch text {
	case btnCreate:
		b.startTask(chatID, userID)
	case btnLink:
		b.startLink(chatID, userID)
	case btnMyTasks:
		b.showMyTasks(ctx, chatID, userID)
	case btnHelp:
		b.showHelp(chatID)
	default:
		reply := b.engine.HandleText(userID, msg.Text)
		if reply.Kind == intake.ReplyNoSession {
			b.maybeShowMenu(chatID, userID)
			return
		}
		b.sendReply(chatID, reply)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	b.logger.Info("command received",
		zap.String("command", msg.Command()),
		zap.Int64("tg_user_id", userID))

	switch msg.Command() {
	case "start":
		b.menuShown[userID] = true
		b.send(chatID, "Choose an action:", mainMenu())
	case "task":
		b.startTask(chatID, userID)
	case "link":
		b.startLink(chatID, userID)
	case "me":
		linked, err := b.links.Lookup(userID)
		if err != nil {
			b.logger.Error("link lookup failed", zap.Int64("tg_user_id", userID), zap.Error(err))
		}
		b.send(chatID, fmt.Sprintf("Telegram ID: %d\nLinked Bitrix ID: %d", userID, linked), mainMenu())
	case "mytasks":
		b.showMyTasks(ctx, chatID, userID)
	case "cancel":
		b.awaitingLink[userID] = false
		b.sendReply(chatID, b.engine.Cancel(userID))
	case "help":
		b.showHelp(chatID)
	default:
		b.send(chatID, "Unknown command. Try /start.", nil)
	}
}

// startTask begins the intake conversation, gated on a linked profile so
// tasks carry the real creator instead of the technical webhook user.
func (b *Bot) startTask(chatID, userID int64) {
	linked, err := b.links.Lookup(userID)
	if err != nil {
		b.logger.Error("link lookup failed", zap.Int64("tg_user_id", userID), zap.Error(err))
	}
	if linked == 0 {
		b.send(chatID, strings.Join([]string{
			"Link your Bitrix24 profile first ✅",
			"Otherwise tasks would be created by the technical user.",
			"",
			"Press \"" + btnLink + "\" or \"" + btnHelp + "\".",
		}, "\n"), mainMenu())
		return
	}
	b.sendReply(chatID, b.engine.Start(userID))
}

func (b *Bot) startLink(chatID, userID int64) {
	b.awaitingLink[userID] = true
	b.send(chatID, strings.Join([]string{
		"Link your Bitrix24 profile:",
		"Send a link to your profile, or just the numeric ID.",
		"",
		"Example:",
		"https://your-portal.bitrix24.ru/company/personal/user/123/",
		"or: 123",
	}, "\n"), mainMenu())
}

func (b *Bot) handleLinkInput(chatID, userID int64, text string) {
	bitrixID := linking.ParseUserID(text)
	if bitrixID == 0 {
		b.send(chatID, "Couldn't read the ID. Send a link like .../user/123/ or just the number 123.", mainMenu())
		return
	}
	if err := b.links.Record(userID, bitrixID); err != nil {
		b.logger.Error("recording link failed", zap.Int64("tg_user_id", userID), zap.Error(err))
		b.send(chatID, "Couldn't save the link. Try again later.", mainMenu())
		return
	}
	b.awaitingLink[userID] = false
	b.logger.Info("profile linked", zap.Int64("tg_user_id", userID), zap.Int("bitrix_user_id", bitrixID))
	b.send(chatID, "Done ✅ Profile linked.\nNow press \""+btnCreate+"\".", mainMenu())
}

func (b *Bot) showHelp(chatID int64) {
	b.send(chatID, strings.Join([]string{
		"How to find your ID in Bitrix24:",
		"1) Open your portal: https://your-portal.bitrix24.ru/",
		"2) Click your name or avatar, then Profile",
		"3) The address bar shows .../company/personal/user/123/ — 123 is your ID",
		"",
		"You can send the whole link or just the number.",
	}, "\n"), mainMenu())
}

func (b *Bot) showMyTasks(ctx context.Context, chatID, userID int64) {
	b.menuShown[userID] = true
	if !b.cfg.MyTasks {
		b.send(chatID, "The task listing is currently disabled by the administrator.", mainMenu())
		return
	}

	linked, err := b.links.Lookup(userID)
	if err != nil {
		b.logger.Error("link lookup failed", zap.Int64("tg_user_id", userID), zap.Error(err))
	}
	if linked == 0 {
		b.send(chatID, "Link your Bitrix24 profile first — press \""+btnLink+"\".", mainMenu())
		return
	}

	b.send(chatID, "Looking up tasks you created in Bitrix24…", nil)
	tasks, err := b.tasks.ListTasksCreatedBy(ctx, linked, b.cfg.MyTasksLimit)
	if err != nil {
		b.logger.Error("task listing failed",
			zap.Int64("tg_user_id", userID),
			zap.Int("bitrix_user_id", linked),
			zap.Error(err))
		b.send(chatID, "Couldn't fetch your tasks from Bitrix24. Try again later.", mainMenu())
		return
	}
	if len(tasks) == 0 {
		b.send(chatID, "You have no tasks you created yet ✅", mainMenu())
		return
	}
	b.send(chatID, b.formatTaskList(tasks), mainMenu())
}

// maybeShowMenu shows the main menu once for unprompted text, without
// spamming it on every message.
func (b *Bot) maybeShowMenu(chatID, userID int64) {
	if b.menuShown[userID] {
		b.send(chatID, "Choose an action with a button 👇", mainMenu())
		return
	}
	b.menuShown[userID] = true
	b.send(chatID, "Choose an action:", mainMenu())
}

func (b *Bot) handleFileMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadDocument))

	var blob staging.Blob
	switch {
	case msg.Document != nil:
		doc := msg.Document
		name := doc.FileName
		if name == "" {
			name = "document_" + doc.FileUniqueID
		}
		blob = staging.Blob{Name: name, Size: int64(doc.FileSize), Open: b.fileOpener(doc.FileID)}
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1] // largest rendition
		blob = staging.Blob{
			Name: "photo_" + photo.FileUniqueID + ".jpg",
			Size: int64(photo.FileSize),
			Open: b.fileOpener(photo.FileID),
		}
	default:
		return
	}

	b.sendReply(chatID, b.engine.HandleAttachment(ctx, userID, blob))
}

// fileOpener defers the Telegram file download until the collector has
// accepted the blob.
func (b *Bot) fileOpener(fileID string) func(ctx context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		url, err := b.api.GetFileDirectURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("resolving telegram file url: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building file request: %w", err)
		}
		resp, err := b.files.Do(req)
		if err != nil {
			return nil, fmt.Errorf("downloading telegram file: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("downloading telegram file: HTTP %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	b.api.Request(tgbotapi.NewCallback(cq.ID, ""))

	if cq.From == nil || cq.Message == nil {
		return
	}
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID

	if !b.allowed(userID) {
		b.send(chatID, "Access denied.", nil)
		return
	}

	switch cq.Data {
	case cbStartTask:
		b.startTask(chatID, userID)
	case cbAttachmentsDone:
		b.sendReply(chatID, b.engine.FinishAttachments(userID))
	case cbCancelTask:
		b.sendReply(chatID, b.engine.Cancel(userID))
	case cbConfirmCreate:
		b.runConfirm(ctx, chatID, userID, cq.From)
	}
}

// runConfirm drives the upload-and-submit pipeline and reports every
// outcome back to the chat; the user never gets a silent drop.
func (b *Bot) runConfirm(ctx context.Context, chatID, userID int64, from *tgbotapi.User) {
	initiator := "tg_id:" + fmt.Sprint(userID)
	if from.UserName != "" {
		initiator = "@" + from.UserName
	}

	result := b.engine.Confirm(ctx, userID, initiator, func(p intake.Progress, n int, failed []string) {
		switch p {
		case intake.ProgressUploading:
			b.send(chatID, fmt.Sprintf("Uploading %d attachment(s) to Bitrix24 Disk…", n), nil)
		case intake.ProgressPartialUpload:
			b.send(chatID, "Some attachments failed to upload. The task will be created with the successful ones only.\n\nFailed files:\n"+bulletList(failed), nil)
		case intake.ProgressCreating:
			b.send(chatID, "Creating the task in Bitrix24…", nil)
		}
	})

	switch result.Status {
	case intake.ConfirmCreated:
		lines := []string{"Task created ✅", fmt.Sprintf("ID: %d", result.TaskID)}
		if link := b.taskLink(result.TaskID); link != "" {
			lines = append(lines, "Link: "+link)
		}
		if result.Uploaded > 0 {
			lines = append(lines, fmt.Sprintf("Attachments: %d", result.Uploaded))
		}
		if len(result.FailedFiles) > 0 {
			lines = append(lines, "Files that failed to upload:\n"+bulletList(result.FailedFiles))
		}
		b.send(chatID, strings.Join(lines, "\n"), mainMenu())
	case intake.ConfirmNoSession:
		b.sendReply(chatID, intake.Reply{Kind: intake.ReplyNoSession})
	case intake.ConfirmWrongState:
		b.send(chatID, renderExpectation(result.State), nil)
	case intake.ConfirmIncomplete:
		b.send(chatID, "The draft is missing data. Start again with /task.", mainMenu())
	case intake.ConfirmNotLinked:
		b.send(chatID, "Can't create a task without a linked Bitrix24 profile.\nPress \""+btnLink+"\" and send your ID or profile link.", mainMenu())
	case intake.ConfirmUploadsFailed:
		b.send(chatID, "None of the attachments could be uploaded, so the task was not created.\nCheck access to the Bitrix Disk folder and try again.\n\nFailed files:\n"+bulletList(result.FailedFiles), mainMenu())
	case intake.ConfirmSubmitFailed:
		b.send(chatID, "Couldn't create the task because of a Bitrix24 error. The session was reset; try again later.", mainMenu())
	}
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

// sendReply renders and sends an engine reply.
func (b *Bot) sendReply(chatID int64, reply intake.Reply) {
	text, markup := b.renderReply(reply)
	if text == "" {
		return
	}
	b.send(chatID, text, markup)
}

// send delivers one message, logging delivery failures instead of
// propagating them; there is nobody upstream to handle a chat error.
func (b *Bot) send(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("sending message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
