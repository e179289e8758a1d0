package handlers

import (
	"context"
	"math"

	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/mroshb/quiz_bot/telegram"
)

// Admin commands
const (
	CmdGetChat = "get_chat"
	CmdStart   = "start"
	CmdStop    = "stop"
	CmdKick    = "kick"
	CmdKickAll = "kick_all"
)

// HandleCommand runs one admin command under the recovery guard.
func (h *HandlerManager) HandleCommand(ctx context.Context, cmd telegram.Command) {
	h.Guard.Run(ctx, "command /"+cmd.Name, func(ctx context.Context) error {
		h.handleCommand(ctx, cmd)
		return nil
	})
}

func (h *HandlerManager) handleCommand(ctx context.Context, cmd telegram.Command) {
	switch cmd.Name {
	case CmdGetChat, CmdStart, CmdStop, CmdKick, CmdKickAll:
	default:
		return
	}

	logger.Debug("Received command", "command", cmd.Name, "user_id", cmd.UserID, "chat_id", cmd.ChatID)

	// Check rate limit
	if !h.Limiter.CheckUserLimit(cmd.UserID) {
		wait := h.Limiter.RetryAfter(cmd.UserID)
		logger.Warn("Command rate limited", "command", cmd.Name, "user_id", cmd.UserID, "retry_after", wait)
		h.reply(ctx, cmd, h.Texts.Render(quiz.OutcomeRateLimited.TextKey(), messages.Data{Seconds: int(math.Ceil(wait.Seconds()))}))
		return
	}

	// First /get_chat is open to anyone
	if cmd.Name == CmdGetChat && h.collected.CompareAndSwap(false, true) {
		if !h.handleGetChat(ctx, cmd) {
			h.collected.Store(false)
		}
		return
	}

	// Check admin
	if !h.isAdmin(cmd.UserID) {
		h.replyOutcome(ctx, cmd, quiz.OutcomeNotAuthorized)
		return
	}

	switch cmd.Name {
	case CmdGetChat:
		h.handleGetChat(ctx, cmd)
	case CmdStart:
		h.handleStart(ctx, cmd)
	case CmdStop:
		h.handleStop(ctx, cmd)
	case CmdKick:
		h.handleKick(ctx, cmd)
	case CmdKickAll:
		h.handleKickAll(ctx, cmd)
	}
}

// handleGetChat collects the chat membership into the roster. It reports whether it succeeded.
func (h *HandlerManager) handleGetChat(ctx context.Context, cmd telegram.Command) bool {
	s := h.Quiz.Session()
	added, err := s.Collect(ctx, h.Bot)
	if err != nil {
		logger.Error("Failed to collect chat members", "error", err, "user_id", cmd.UserID)
		h.replyOutcome(ctx, cmd, quiz.OutcomeInternalError)
		return false
	}

	members, admins := len(s.Members()), len(s.Admins())
	logger.Info("Chat members collected", "added", added, "members", members, "admins", admins)
	h.reply(ctx, cmd, h.Texts.Render(messages.ChatCollected, messages.Data{Members: members, Admins: admins}))
	return true
}

func (h *HandlerManager) handleStart(ctx context.Context, cmd telegram.Command) {
	outcome := h.Quiz.Start(ctx)
	logger.Info("Start requested", "user_id", cmd.UserID, "outcome", outcome)
	if outcome != quiz.OutcomeAccepted {
		h.replyOutcome(ctx, cmd, outcome)
	}
}

func (h *HandlerManager) handleStop(ctx context.Context, cmd telegram.Command) {
	outcome := h.Quiz.Stop(ctx)
	logger.Info("Stop requested", "user_id", cmd.UserID, "outcome", outcome)
	if outcome != quiz.OutcomeAccepted {
		h.replyOutcome(ctx, cmd, outcome)
	}
}

// handleKick removes every mentioned participant. When nobody is removed the reply names the
// last rejection.
func (h *HandlerManager) handleKick(ctx context.Context, cmd telegram.Command) {
	if len(cmd.Mentions) == 0 {
		if len(cmd.Unresolved) > 0 {
			h.replyOutcome(ctx, cmd, quiz.OutcomeNotParticipant)
			return
		}
		h.replyOutcome(ctx, cmd, quiz.OutcomeNobodyToKick)
		return
	}

	s := h.Quiz.Session()
	kicked := 0
	last := quiz.OutcomeNotParticipant
	for _, id := range cmd.Mentions {
		outcome, err := s.Kick(ctx, h.Bot, id)
		if err != nil {
			logger.Error("Failed to kick participant", "user_id", id, "error", err)
		}
		if outcome == quiz.OutcomeAccepted {
			kicked++
			continue
		}
		last = outcome
	}

	logger.Info("Kick finished", "admin_id", cmd.UserID, "requested", len(cmd.Mentions), "kicked", kicked)
	if kicked == 0 {
		h.replyOutcome(ctx, cmd, last)
		return
	}
	h.reply(ctx, cmd, h.Texts.Render(messages.Kicked, messages.Data{Count: kicked}))
}

func (h *HandlerManager) handleKickAll(ctx context.Context, cmd telegram.Command) {
	s := h.Quiz.Session()
	if len(s.Members()) == 0 {
		h.replyOutcome(ctx, cmd, quiz.OutcomeRosterEmpty)
		return
	}

	h.reply(ctx, cmd, h.Texts.Text(messages.KickAllStart))
	kicked, outcome, err := s.KickAll(ctx, h.Bot)
	if err != nil {
		logger.Warn("Some participants could not be removed", "kicked", kicked, "error", err)
	}
	if outcome != quiz.OutcomeAccepted {
		h.replyOutcome(ctx, cmd, outcome)
		return
	}

	logger.Info("Kick all finished", "admin_id", cmd.UserID, "kicked", kicked)
	h.reply(ctx, cmd, h.Texts.Render(messages.Kicked, messages.Data{Count: kicked}))
	h.reply(ctx, cmd, h.Texts.Text(messages.KickAllEnd))
}

func (h *HandlerManager) replyOutcome(ctx context.Context, cmd telegram.Command, outcome quiz.Outcome) {
	h.reply(ctx, cmd, h.Texts.Text(outcome.TextKey()))
}

func (h *HandlerManager) reply(ctx context.Context, cmd telegram.Command, text string) {
	if err := h.Bot.Reply(ctx, cmd.ChatID, cmd.MessageID, text); err != nil {
		logger.Error("Failed to reply to command", "command", cmd.Name, "chat_id", cmd.ChatID, "error", err)
	}
}
