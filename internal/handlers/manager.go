package handlers

import (
	"context"
	"sync/atomic"

	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/middleware"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/internal/recovery"
)

// BotInterface is the transport surface the handlers reply through.
type BotInterface interface {
	quiz.ChatMembers
	AnswerEvent(ctx context.Context, eventID, text string) error
	Reply(ctx context.Context, chatID int64, replyTo int, text string) error
}

// Quiz is the part of the quiz controller that commands drive.
type Quiz interface {
	Start(ctx context.Context) quiz.Outcome
	Stop(ctx context.Context) quiz.Outcome
	Session() *quiz.Session
}

// HandlerManager serves the command and answer streams of the listener.
type HandlerManager struct {
	Config  *config.Config
	Quiz    Quiz
	Bot     BotInterface
	Texts   *messages.Catalog
	Limiter *middleware.RateLimiter
	Guard   *recovery.Guard

	// collected is set once /get_chat has bootstrapped the roster.
	collected atomic.Bool
}

func NewHandlerManager(
	cfg *config.Config,
	q Quiz,
	bot BotInterface,
	texts *messages.Catalog,
	limiter *middleware.RateLimiter,
	guard *recovery.Guard,
) *HandlerManager {
	return &HandlerManager{
		Config:  cfg,
		Quiz:    q,
		Bot:     bot,
		Texts:   texts,
		Limiter: limiter,
		Guard:   guard,
	}
}

// MarkCollected disables the /get_chat bootstrap, e.g. after a resumed session restored its roster.
func (h *HandlerManager) MarkCollected() {
	h.collected.Store(true)
}

func (h *HandlerManager) isAdmin(userID int64) bool {
	return userID == h.Config.LeadAdminID || h.Quiz.Session().IsAdmin(userID)
}
