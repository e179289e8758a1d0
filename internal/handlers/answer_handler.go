package handlers

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/mroshb/quiz_bot/telegram"
)

// HandleAnswer registers an answer click and replies to it exactly once, even when the
// registry panics.
func (h *HandlerManager) HandleAnswer(ctx context.Context, a telegram.Answer) {
	text := h.Texts.Text(messages.InternalError)
	defer func() {
		if r := recover(); r != nil {
			h.Guard.Report(ctx, "answer handler", fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
		if err := h.Bot.AnswerEvent(ctx, a.Event.EventID, text); err != nil {
			logger.Warn("Failed to answer click", "user_id", a.Event.UserID, "error", err)
		}
	}()

	if a.Closed {
		text = h.Texts.Text(quiz.OutcomeAnswerBlocked.TextKey())
		return
	}

	res := h.Quiz.Session().Submit(a.Event)
	logger.Debug("Answer registered", "user_id", a.Event.UserID, "outcome", res.Outcome, "score", res.Score)
	text = h.Texts.Render(res.Outcome.TextKey(), messages.Data{Score: res.Score})
}
