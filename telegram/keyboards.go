package telegram

import (
	"context"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/internal/security"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

const gridColumns = 2

// Button labels
const (
	BtnMyScore = "📊 My score"
	markRight  = "✅ "
	markWrong  = "❌ "
)

// BuildKeyboard lays out the answer buttons of q. The reveal variant marks the correct options
// and its buttons no longer register answers.
func (b *Bot) BuildKeyboard(q *models.Question, opts quiz.KeyboardOptions) quiz.Keyboard {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(q.Options))
	for i, o := range q.Options {
		label, data := o.Text, answerData(i, o.Correct)
		if opts.Reveal {
			data = dataClosed
			if o.Correct {
				label = markRight + o.Text
			} else {
				label = markWrong + o.Text
			}
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(label, data))
	}

	columns := 1
	if q.Layout == models.LayoutGrid {
		columns = gridColumns
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton
	for _, btn := range buttons {
		currentRow = append(currentRow, btn)
		if len(currentRow) == columns {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(currentRow...))
			currentRow = nil
		}
	}
	if len(currentRow) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(currentRow...))
	}

	if opts.ScoreProbe && !opts.Reveal {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnMyScore, dataScore),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// UploadAttachments resolves question attachments into files Telegram can send. A reference is
// a URL, a local image path or a Telegram file id. Local files already uploaded are sent by id.
func (b *Bot) UploadAttachments(ctx context.Context, q *models.Question) (quiz.Media, error) {
	if len(q.Attachments) == 0 {
		return nil, nil
	}

	files := make([]tgbotapi.RequestFileData, 0, len(q.Attachments))
	for _, ref := range q.Attachments {
		switch {
		case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
			files = append(files, tgbotapi.FileURL(ref))
		case security.ValidateFileType(ref, security.ImageTypes):
			if id := b.cachedFileID(ref); id != "" {
				files = append(files, tgbotapi.FileID(id))
				continue
			}
			if _, err := os.Stat(ref); err != nil {
				logger.Warn("Skipping missing attachment", "path", ref, "error", err)
				continue
			}
			files = append(files, tgbotapi.FilePath(ref))
		default:
			files = append(files, tgbotapi.FileID(ref))
		}
	}
	return files, nil
}

func (b *Bot) cachedFileID(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fileIDs[path]
}

func (b *Bot) rememberUpload(file tgbotapi.RequestFileData, sizes []tgbotapi.PhotoSize) {
	path, ok := file.(tgbotapi.FilePath)
	if !ok || len(sizes) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fileIDs[string(path)] = sizes[len(sizes)-1].FileID
}

func isAnswerKeyboard(markup tgbotapi.InlineKeyboardMarkup) bool {
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil && (strings.HasPrefix(*btn.CallbackData, prefixAnswer) || *btn.CallbackData == dataScore) {
				return true
			}
		}
	}
	return false
}
