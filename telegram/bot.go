package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/mroshb/quiz_bot/pkg/utils"
)

const (
	maxRetries     = 3
	maxCaptionLen  = 1024
	updatesTimeout = 60
)

// API is the subset of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Bot is the Telegram side of the quiz: it publishes to the quiz chat, tracks its members and
// turns updates into commands and answer events.
type Bot struct {
	api         API
	chatID      int64
	leadAdminID int64

	members *memberTracker

	mu sync.Mutex
	// keyboardMessageID is the last message carrying an answer keyboard.
	keyboardMessageID int
	// fileIDs caches Telegram file ids of uploaded local attachments.
	fileIDs map[string]string

	backoff time.Duration
}

func NewBot(api API, chatID, leadAdminID int64) *Bot {
	return &Bot{
		api:         api,
		chatID:      chatID,
		leadAdminID: leadAdminID,
		members:     newMemberTracker(),
		fileIDs:     make(map[string]string),
		backoff:     time.Second,
	}
}

// InitBot authorizes against the Bot API with the configured token.
func InitBot(cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	if cfg.DebugMode {
		api.Debug = true
	}

	logger.Info("Authorized on account", "username", api.Self.UserName)
	return NewBot(api, cfg.ChatID, cfg.LeadAdminID), nil
}

func (b *Bot) Send(ctx context.Context, text string, opts quiz.SendOptions) (int, error) {
	if opts.RemoveKeyboard {
		b.dropKeyboard(ctx)
	}

	markup, hasKeyboard := opts.Keyboard.(tgbotapi.InlineKeyboardMarkup)
	files, _ := opts.Media.([]tgbotapi.RequestFileData)

	var (
		messageID int
		err       error
	)
	switch {
	// Single photo carries the text as caption
	case len(files) == 1 && len([]rune(text)) <= maxCaptionLen:
		messageID, err = b.sendPhoto(ctx, files[0], text, opts.Keyboard)
	// Album first, then the text with the keyboard
	case len(files) > 0:
		if err := b.sendAlbum(ctx, files); err != nil {
			logger.Warn("Failed to send attachments", "count", len(files), "error", err)
		}
		messageID, err = b.sendText(ctx, b.chatID, text, opts.Keyboard)
	default:
		messageID, err = b.sendText(ctx, b.chatID, text, opts.Keyboard)
	}
	if err != nil {
		return 0, err
	}

	// Remember where answers are collected
	if hasKeyboard && isAnswerKeyboard(markup) {
		b.mu.Lock()
		b.keyboardMessageID = messageID
		b.mu.Unlock()
	}
	return messageID, nil
}

func (b *Bot) Pin(ctx context.Context, messageID int) error {
	_, err := b.request(ctx, tgbotapi.PinChatMessageConfig{
		ChatID:              b.chatID,
		MessageID:           messageID,
		DisableNotification: true,
	})
	return err
}

func (b *Bot) Unpin(ctx context.Context) error {
	_, err := b.request(ctx, tgbotapi.UnpinAllChatMessagesConfig{ChatID: b.chatID})
	return err
}

func (b *Bot) AnswerEvent(ctx context.Context, eventID, text string) error {
	_, err := b.request(ctx, tgbotapi.NewCallback(eventID, utils.Truncate(text, utils.MaxCallbackAnswerLen)))
	return err
}

// Reply answers a command message in the chat it came from.
func (b *Bot) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	chunks := utils.SplitMessage(text, utils.MaxMessageLen)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 {
			msg.ReplyToMessageID = replyTo
			msg.AllowSendingWithoutReply = true
		}
		if _, err := b.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// NotifyAdmin sends text to the lead administrator in private, split into Telegram-sized chunks.
func (b *Bot) NotifyAdmin(ctx context.Context, text string) error {
	for _, chunk := range utils.SplitMessage(text, utils.MaxMessageLen) {
		if _, err := b.sendText(ctx, b.leadAdminID, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

// dropKeyboard removes the answer keyboard from the last question.
func (b *Bot) dropKeyboard(ctx context.Context) {
	b.mu.Lock()
	messageID := b.keyboardMessageID
	b.keyboardMessageID = 0
	b.mu.Unlock()

	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(b.chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := b.request(ctx, edit); err != nil {
		logger.Warn("Failed to remove answer keyboard", "message_id", messageID, "error", err)
	}
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string, keyboard any) (int, error) {
	chunks := utils.SplitMessage(text, utils.MaxMessageLen)
	messageID := 0
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == len(chunks)-1 {
			setMarkup(&msg.BaseChat, keyboard)
		}
		sent, err := b.send(ctx, msg)
		if err != nil {
			return 0, err
		}
		messageID = sent.MessageID
	}
	return messageID, nil
}

func (b *Bot) sendPhoto(ctx context.Context, file tgbotapi.RequestFileData, caption string, keyboard any) (int, error) {
	photo := tgbotapi.NewPhoto(b.chatID, file)
	photo.Caption = caption
	setMarkup(&photo.BaseChat, keyboard)

	sent, err := b.send(ctx, photo)
	if err != nil {
		return 0, err
	}
	b.rememberUpload(file, sent.Photo)
	return sent.MessageID, nil
}

func (b *Bot) sendAlbum(ctx context.Context, files []tgbotapi.RequestFileData) error {
	media := make([]any, 0, len(files))
	for _, f := range files {
		media = append(media, tgbotapi.NewInputMediaPhoto(f))
	}
	cfg := tgbotapi.NewMediaGroup(b.chatID, media)

	return b.retry(ctx, "send media group", func() error {
		sent, err := b.api.SendMediaGroup(cfg)
		if err != nil {
			return err
		}
		for i, m := range sent {
			if i < len(files) {
				b.rememberUpload(files[i], m.Photo)
			}
		}
		return nil
	})
}

func setMarkup(chat *tgbotapi.BaseChat, keyboard any) {
	switch kb := keyboard.(type) {
	case tgbotapi.InlineKeyboardMarkup:
		chat.ReplyMarkup = kb
	case tgbotapi.ReplyKeyboardRemove:
		chat.ReplyMarkup = kb
	}
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var sent tgbotapi.Message
	err := b.retry(ctx, "send message", func() error {
		var err error
		sent, err = b.api.Send(c)
		return err
	})
	return sent, err
}

func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	var resp *tgbotapi.APIResponse
	err := b.retry(ctx, "request", func() error {
		var err error
		resp, err = b.api.Request(c)
		return err
	})
	return resp, err
}

// retry runs fn up to maxRetries times, backing off only on network errors.
func (b *Bot) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.Error("Telegram call failed", "op", op, "error", err, "chat_id", b.chatID, "attempt", i+1)

		// Only network errors are worth retrying
		if !isNetworkError(err) {
			break
		}
		t := time.NewTimer(time.Duration(i+1) * b.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrCodeTransport, op+" cancelled")
		case <-t.C:
		}
	}
	return errors.Wrap(err, errors.ErrCodeTransport, op+" failed")
}

func isNetworkError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "Too Many Requests")
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func participant(u *tgbotapi.User, isAdmin bool) models.Participant {
	return models.Participant{ID: u.ID, Name: displayName(u), IsAdmin: isAdmin}
}
