package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/security"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

// memberTracker remembers the non-bot users seen in the quiz chat. The Bot API cannot list
// ordinary members, so the roster is built from joins, messages and clicks.
type memberTracker struct {
	mu         sync.RWMutex
	order      []int64
	users      map[int64]tgbotapi.User
	byUsername map[string]int64
}

func newMemberTracker() *memberTracker {
	return &memberTracker{
		users:      make(map[int64]tgbotapi.User),
		byUsername: make(map[string]int64),
	}
}

func (t *memberTracker) see(u *tgbotapi.User) {
	if u == nil || u.IsBot {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.users[u.ID]; !ok {
		t.order = append(t.order, u.ID)
	}
	t.users[u.ID] = *u
	if u.UserName != "" {
		t.byUsername[strings.ToLower(u.UserName)] = u.ID
	}
}

func (t *memberTracker) forget(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.users[id]
	if !ok {
		return
	}
	delete(t.users, id)
	if u.UserName != "" {
		delete(t.byUsername, strings.ToLower(u.UserName))
	}
	for i, known := range t.order {
		if known == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *memberTracker) list() []tgbotapi.User {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]tgbotapi.User, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.users[id])
	}
	return out
}

func (t *memberTracker) lookup(username string) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byUsername[strings.ToLower(strings.TrimPrefix(username, "@"))]
	return id, ok
}

func (t *memberTracker) name(id int64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.users[id]
	if !ok {
		return "", false
	}
	return displayName(&u), true
}

// Members returns the chat administrators followed by every other user seen in the chat.
func (b *Bot) Members(ctx context.Context) ([]models.Participant, error) {
	admins, err := b.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: b.chatID},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTransport, "failed to get chat administrators")
	}

	var out []models.Participant
	isAdmin := make(map[int64]bool, len(admins))
	for _, m := range admins {
		if m.User == nil || m.User.IsBot {
			continue
		}
		isAdmin[m.User.ID] = true
		out = append(out, b.toParticipant(m.User, true))
	}
	if !isAdmin[b.leadAdminID] && b.leadAdminID != 0 {
		name, _ := b.DisplayName(ctx, b.leadAdminID)
		out = append(out, models.Participant{ID: b.leadAdminID, Name: name, IsAdmin: true})
		isAdmin[b.leadAdminID] = true
	}

	for _, u := range b.members.list() {
		if isAdmin[u.ID] {
			continue
		}
		out = append(out, b.toParticipant(&u, false))
	}
	logger.Debug("Chat members enumerated", "admins", len(isAdmin), "total", len(out))
	return out, nil
}

// Remove kicks the user out of the chat without banning them for good.
func (b *Bot) Remove(ctx context.Context, userID int64) error {
	member := tgbotapi.ChatMemberConfig{ChatID: b.chatID, UserID: userID}

	if _, err := b.request(ctx, tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: member,
		UntilDate:        time.Now().Add(time.Minute).Unix(),
	}); err != nil {
		return err
	}
	if _, err := b.request(ctx, tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: member,
		OnlyIfBanned:     true,
	}); err != nil {
		logger.Warn("Failed to lift the kick ban", "user_id", userID, "error", err)
	}

	b.members.forget(userID)
	return nil
}

func (b *Bot) DisplayName(ctx context.Context, userID int64) (string, error) {
	fallback := "user" + strconv.FormatInt(userID, 10)
	if name, ok := b.members.name(userID); ok {
		return security.SanitizeName(name, fallback), nil
	}

	m, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: b.chatID, UserID: userID},
	})
	if err != nil {
		return fallback, errors.Wrap(err, errors.ErrCodeTransport, "failed to get chat member")
	}
	return security.SanitizeName(displayName(m.User), fallback), nil
}

func (b *Bot) toParticipant(u *tgbotapi.User, isAdmin bool) models.Participant {
	p := participant(u, isAdmin)
	p.Name = security.SanitizeName(p.Name, "user"+strconv.FormatInt(u.ID, 10))
	return p
}
