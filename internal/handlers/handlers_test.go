package handlers

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/middleware"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/internal/recovery"
	"github.com/mroshb/quiz_bot/telegram"
)

const (
	leadAdmin = int64(1)
	chatID    = int64(-100)
)

type fakeBot struct {
	mu      sync.Mutex
	list    []models.Participant
	failIDs map[int64]bool
	removed []int64
	replies []string
	events  map[string][]string
}

func newFakeBot(people ...models.Participant) *fakeBot {
	return &fakeBot{list: people, failIDs: map[int64]bool{}, events: map[string][]string{}}
}

func (b *fakeBot) Members(ctx context.Context) ([]models.Participant, error) {
	return b.list, nil
}

func (b *fakeBot) Remove(ctx context.Context, userID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failIDs[userID] {
		return errors.New("Bad Request: not enough rights")
	}
	b.removed = append(b.removed, userID)
	return nil
}

func (b *fakeBot) DisplayName(ctx context.Context, userID int64) (string, error) {
	return "someone", nil
}

func (b *fakeBot) AnswerEvent(ctx context.Context, eventID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[eventID] = append(b.events[eventID], text)
	return nil
}

func (b *fakeBot) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, text)
	return nil
}

type fakeQuiz struct {
	session *quiz.Session
	start   quiz.Outcome
	stop    quiz.Outcome
	starts  int
	stops   int
}

func (q *fakeQuiz) Start(ctx context.Context) quiz.Outcome {
	q.starts++
	return q.start
}

func (q *fakeQuiz) Stop(ctx context.Context) quiz.Outcome {
	q.stops++
	return q.stop
}

func (q *fakeQuiz) Session() *quiz.Session {
	return q.session
}

type flagStore struct {
	mu    sync.Mutex
	flags []recovery.Flag
}

func (s *flagStore) SaveCheckpoint(ctx context.Context, cp recovery.Checkpoint) error { return nil }

func (s *flagStore) LoadCheckpoint(ctx context.Context) (*recovery.Checkpoint, error) {
	return nil, nil
}

func (s *flagStore) RaiseFlag(ctx context.Context, flag recovery.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = append(s.flags, flag)
	return nil
}

func (s *flagStore) Flags(ctx context.Context) ([]recovery.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recovery.Flag(nil), s.flags...), nil
}

func (s *flagStore) ClearFlags(ctx context.Context, before time.Time) (int, error) { return 0, nil }

type fixture struct {
	h     *HandlerManager
	bot   *fakeBot
	quiz  *fakeQuiz
	flags *flagStore
}

var people = []models.Participant{
	{ID: leadAdmin, Name: "Lead", IsAdmin: true},
	{ID: 2, Name: "Ann"},
	{ID: 3, Name: "Bob"},
	{ID: 7, Name: "Mod", IsAdmin: true},
}

func newFixture(limit int) *fixture {
	bot := newFakeBot(people...)
	q := &fakeQuiz{session: quiz.NewSession(quiz.ModeScore, 1)}
	flags := &flagStore{}
	texts := messages.Default()
	h := NewHandlerManager(
		&config.Config{LeadAdminID: leadAdmin},
		q,
		bot,
		texts,
		middleware.NewRateLimiter(limit, time.Minute),
		recovery.NewGuard(flags, nil, texts),
	)
	return &fixture{h: h, bot: bot, quiz: q, flags: flags}
}

func (f *fixture) collect(t *testing.T) {
	t.Helper()
	if _, err := f.quiz.session.Collect(context.Background(), f.bot); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	f.h.MarkCollected()
}

func (f *fixture) takeReplies() []string {
	f.bot.mu.Lock()
	defer f.bot.mu.Unlock()
	out := f.bot.replies
	f.bot.replies = nil
	return out
}

func command(name string, from int64, mentions ...int64) telegram.Command {
	return telegram.Command{Name: name, UserID: from, ChatID: chatID, MessageID: 10, Mentions: mentions}
}

func text(key string, data messages.Data) string {
	return messages.Default().Render(key, data)
}

func outcomeText(o quiz.Outcome) string {
	return text(o.TextKey(), messages.Data{})
}

func TestHandleCommand_Authorization(t *testing.T) {
	f := newFixture(100)
	ctx := context.Background()
	collected := text(messages.ChatCollected, messages.Data{Members: 2, Admins: 2})

	steps := []struct {
		name string
		cmd  telegram.Command
		want []string
	}{
		{name: "First get_chat bootstraps for anyone", cmd: command(CmdGetChat, 2), want: []string{collected}},
		{name: "Later get_chat needs an admin", cmd: command(CmdGetChat, 3), want: []string{outcomeText(quiz.OutcomeNotAuthorized)}},
		{name: "Collected admin may get_chat", cmd: command(CmdGetChat, 7), want: []string{collected}},
		{name: "Member cannot start", cmd: command(CmdStart, 2), want: []string{outcomeText(quiz.OutcomeNotAuthorized)}},
		{name: "Admin starts silently", cmd: command(CmdStart, 7)},
		{name: "Unknown command is ignored", cmd: command("help", 7)},
	}

	for _, s := range steps {
		f.h.HandleCommand(ctx, s.cmd)
		if got := f.takeReplies(); !reflect.DeepEqual(got, s.want) {
			t.Errorf("%s: replies = %q, want %q", s.name, got, s.want)
		}
	}
	if f.quiz.starts != 1 {
		t.Errorf("starts = %d, want 1", f.quiz.starts)
	}
}

func TestHandleCommand_StartStopOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		cmd   string
		start quiz.Outcome
		stop  quiz.Outcome
		want  []string
	}{
		{name: "Start accepted", cmd: CmdStart, start: quiz.OutcomeAccepted},
		{name: "Already running", cmd: CmdStart, start: quiz.OutcomeAlreadyRunning, want: []string{outcomeText(quiz.OutcomeAlreadyRunning)}},
		{name: "Finished", cmd: CmdStart, start: quiz.OutcomeQuizFinished, want: []string{outcomeText(quiz.OutcomeQuizFinished)}},
		{name: "Stop accepted", cmd: CmdStop, stop: quiz.OutcomeAccepted},
		{name: "Already stopped", cmd: CmdStop, stop: quiz.OutcomeAlreadyStopped, want: []string{outcomeText(quiz.OutcomeAlreadyStopped)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(100)
			f.quiz.start, f.quiz.stop = tt.start, tt.stop

			f.h.HandleCommand(context.Background(), command(tt.cmd, leadAdmin))
			if got := f.takeReplies(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("replies = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleCommand_RateLimited(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	f.h.HandleCommand(ctx, command(CmdStart, leadAdmin))
	f.h.HandleCommand(ctx, command(CmdStart, leadAdmin))

	want := []string{text(quiz.OutcomeRateLimited.TextKey(), messages.Data{Seconds: 60})}
	if got := f.takeReplies(); !reflect.DeepEqual(got, want) {
		t.Errorf("replies = %q, want %q", got, want)
	}
	if f.quiz.starts != 1 {
		t.Errorf("starts = %d, want 1", f.quiz.starts)
	}
}

func TestHandleKick(t *testing.T) {
	tests := []struct {
		name        string
		cmd         telegram.Command
		fail        int64
		want        []string
		wantRemoved []int64
	}{
		{name: "No mentions", cmd: command(CmdKick, leadAdmin), want: []string{outcomeText(quiz.OutcomeNobodyToKick)}},
		{
			name: "Unknown username",
			cmd:  telegram.Command{Name: CmdKick, UserID: leadAdmin, ChatID: chatID, Unresolved: []string{"@ghost"}},
			want: []string{outcomeText(quiz.OutcomeNotParticipant)},
		},
		{name: "Admin", cmd: command(CmdKick, leadAdmin, 7), want: []string{outcomeText(quiz.OutcomeCannotKickAdmin)}},
		{name: "Members", cmd: command(CmdKick, leadAdmin, 2, 3, 7), want: []string{text(messages.Kicked, messages.Data{Count: 2})}, wantRemoved: []int64{2, 3}},
		{name: "Remote failure", cmd: command(CmdKick, leadAdmin, 2), fail: 2, want: []string{outcomeText(quiz.OutcomeInternalError)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(100)
			f.collect(t)
			f.bot.failIDs[tt.fail] = true

			f.h.HandleCommand(context.Background(), tt.cmd)
			if got := f.takeReplies(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("replies = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(f.bot.removed, tt.wantRemoved) {
				t.Errorf("removed = %v, want %v", f.bot.removed, tt.wantRemoved)
			}
		})
	}
}

func TestHandleKickAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty roster", func(t *testing.T) {
		f := newFixture(100)
		f.h.HandleCommand(ctx, command(CmdKickAll, leadAdmin))
		want := []string{outcomeText(quiz.OutcomeRosterEmpty)}
		if got := f.takeReplies(); !reflect.DeepEqual(got, want) {
			t.Errorf("replies = %q, want %q", got, want)
		}
	})

	t.Run("Removes every member", func(t *testing.T) {
		f := newFixture(100)
		f.collect(t)
		f.bot.failIDs[3] = true

		f.h.HandleCommand(ctx, command(CmdKickAll, leadAdmin))
		want := []string{
			text(messages.KickAllStart, messages.Data{}),
			text(messages.Kicked, messages.Data{Count: 1}),
			text(messages.KickAllEnd, messages.Data{}),
		}
		if got := f.takeReplies(); !reflect.DeepEqual(got, want) {
			t.Errorf("replies = %q, want %q", got, want)
		}
		if got := f.quiz.session.Members(); len(got) != 1 || got[0].ID != 3 {
			t.Errorf("members left = %v, want only the failed removal", got)
		}
	})
}

func TestHandleAnswer(t *testing.T) {
	tests := []struct {
		name  string
		event quiz.AnswerEvent
		close bool
		want  string
	}{
		{name: "Closed keyboard", event: quiz.AnswerEvent{UserID: 2, Correct: true}, close: true, want: outcomeText(quiz.OutcomeAnswerBlocked)},
		{name: "Admin", event: quiz.AnswerEvent{UserID: 7, Correct: true}, want: outcomeText(quiz.OutcomeAdminCannotAnswer)},
		{name: "Stranger", event: quiz.AnswerEvent{UserID: 99}, want: outcomeText(quiz.OutcomeNotParticipant)},
		{name: "Score probe", event: quiz.AnswerEvent{UserID: 2, Probe: true}, want: text(quiz.OutcomeScore.TextKey(), messages.Data{Score: 0})},
		{name: "No question on air", event: quiz.AnswerEvent{UserID: 3}, want: outcomeText(quiz.OutcomeAnswerBlocked)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(100)
			f.collect(t)
			tt.event.EventID = "ev"

			f.h.HandleAnswer(context.Background(), telegram.Answer{Event: tt.event, Closed: tt.close})
			got := f.bot.events["ev"]
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("replies = %q, want exactly %q", got, tt.want)
			}
		})
	}
}

func TestHandleAnswer_PanicStillReplies(t *testing.T) {
	f := newFixture(100)
	f.quiz.session = nil

	f.h.HandleAnswer(context.Background(), telegram.Answer{Event: quiz.AnswerEvent{UserID: 2, EventID: "ev"}})

	want := []string{text(messages.InternalError, messages.Data{})}
	if got := f.bot.events["ev"]; !reflect.DeepEqual(got, want) {
		t.Errorf("replies = %q, want %q", got, want)
	}
	if flags, _ := f.flags.Flags(context.Background()); len(flags) != 1 {
		t.Errorf("flags = %d, want 1", len(flags))
	}
}
