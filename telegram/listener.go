package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

const (
	streamBuffer  = 100
	restartDelay  = 5 * time.Second
	mentionPrefix = "@"
)

// Command is an admin command sent in the quiz chat or in private to the bot.
type Command struct {
	Name      string
	Args      string
	UserID    int64
	ChatID    int64
	MessageID int
	// Mentions are the users addressed by the command, resolved to ids.
	Mentions []int64
	// Unresolved holds @usernames nobody in the chat was seen with.
	Unresolved []string
}

// Handler receives the two event streams. Each event is handled on its own goroutine.
type Handler interface {
	HandleCommand(ctx context.Context, cmd Command)
	HandleAnswer(ctx context.Context, a Answer)
}

// Run long-polls updates until ctx is done and splits them into the command and answer streams.
// It returns after every in-flight event has been handled.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	commands := make(chan Command, streamBuffer)
	answers := make(chan Answer, streamBuffer)

	var inflight sync.WaitGroup
	var dispatchers sync.WaitGroup
	dispatchers.Add(2)
	go func() {
		defer dispatchers.Done()
		for cmd := range commands {
			inflight.Add(1)
			go func(cmd Command) {
				defer inflight.Done()
				h.HandleCommand(ctx, cmd)
			}(cmd)
		}
	}()
	go func() {
		defer dispatchers.Done()
		for a := range answers {
			inflight.Add(1)
			go func(a Answer) {
				defer inflight.Done()
				h.HandleAnswer(ctx, a)
			}(a)
		}
	}()

	b.poll(ctx, commands, answers)

	close(commands)
	close(answers)
	dispatchers.Wait()
	inflight.Wait()
	return nil
}

func (b *Bot) poll(ctx context.Context, commands chan<- Command, answers chan<- Answer) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updatesTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}

	stop := context.AfterFunc(ctx, b.api.StopReceivingUpdates)
	defer stop()

	for {
		logger.Info("Starting update listener...")
		updates := b.api.GetUpdatesChan(u)

	receive:
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					break receive
				}
				b.route(ctx, update, commands, answers)
			}
		}

		logger.Warn("Update channel closed. Restarting...", "delay", restartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

func (b *Bot) route(ctx context.Context, update tgbotapi.Update, commands chan<- Command, answers chan<- Answer) {
	switch {
	case update.Message != nil:
		msg := update.Message
		// Track members from quiz chat traffic
		if msg.Chat != nil && msg.Chat.ID == b.chatID {
			b.observe(msg)
		}
		cmd, ok := b.parseCommand(msg)
		if !ok {
			return
		}
		select {
		case commands <- cmd:
		case <-ctx.Done():
		}

	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		a, ok := ParseQuizCallback(query)
		// Foreign buttons still need an answer to stop the spinner
		if !ok {
			if _, err := b.request(ctx, tgbotapi.NewCallback(query.ID, "")); err != nil {
				logger.Warn("Failed to answer foreign callback", "error", err)
			}
			return
		}
		// Handle clicks on an outdated keyboard
		if !a.Event.Probe && !a.Closed && !b.isCurrentKeyboard(query.Message) {
			a.Closed = true
		}
		select {
		case answers <- a:
		case <-ctx.Done():
		}
	}
}

// observe updates the member tracker from a quiz chat message.
func (b *Bot) observe(msg *tgbotapi.Message) {
	b.members.see(msg.From)
	for i := range msg.NewChatMembers {
		b.members.see(&msg.NewChatMembers[i])
	}
	if msg.LeftChatMember != nil {
		b.members.forget(msg.LeftChatMember.ID)
	}
}

// isCurrentKeyboard reports whether a click came from the keyboard of the question on air.
// Clicks on older questions whose keyboard could not be removed are treated as closed.
func (b *Bot) isCurrentKeyboard(msg *tgbotapi.Message) bool {
	if msg == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keyboardMessageID == 0 || msg.MessageID == b.keyboardMessageID
}

func (b *Bot) parseCommand(msg *tgbotapi.Message) (Command, bool) {
	if msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return Command{}, false
	}
	if msg.Chat.ID != b.chatID && !msg.Chat.IsPrivate() {
		return Command{}, false
	}

	cmd := Command{
		Name:      strings.ToLower(msg.Command()),
		Args:      strings.TrimSpace(msg.CommandArguments()),
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
	}
	cmd.Mentions, cmd.Unresolved = b.mentions(msg)
	return cmd, true
}

// mentions collects the users addressed by a message: text mentions carry the user, @usernames
// are resolved against the users seen in the chat.
func (b *Bot) mentions(msg *tgbotapi.Message) ([]int64, []string) {
	var ids []int64
	var unresolved []string
	seen := make(map[int64]bool)

	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	text := []rune(msg.Text)
	tagged := false
	for _, e := range msg.Entities {
		switch e.Type {
		case "text_mention":
			tagged = true
			if e.User != nil {
				b.members.see(e.User)
				add(e.User.ID)
			}
		case "mention":
			tagged = true
			name := entityText(text, e)
			if id, ok := b.members.lookup(name); ok {
				add(id)
			} else {
				unresolved = append(unresolved, name)
			}
		}
	}
	if !tagged {
		for _, field := range strings.Fields(msg.CommandArguments()) {
			if !strings.HasPrefix(field, mentionPrefix) {
				continue
			}
			if id, ok := b.members.lookup(field); ok {
				add(id)
			} else {
				unresolved = append(unresolved, field)
			}
		}
	}
	return ids, unresolved
}

// entityText cuts an entity out of the message text. Telegram offsets count UTF-16 code units.
func entityText(text []rune, e tgbotapi.MessageEntity) string {
	var out []rune
	pos := 0
	for _, r := range text {
		width := 1
		if r > 0xFFFF {
			width = 2
		}
		if pos >= e.Offset && pos < e.Offset+e.Length {
			out = append(out, r)
		}
		pos += width
	}
	return string(out)
}
