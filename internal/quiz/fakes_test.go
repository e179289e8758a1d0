package quiz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/recovery"
	apperrors "github.com/mroshb/quiz_bot/pkg/errors"
)

type fakeKeyboard struct {
	Question   string
	Reveal     bool
	ScoreProbe bool
}

type sentMessage struct {
	ID   int
	Text string
	Opts SendOptions
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sent      []sentMessage
	pinned    []int
	unpins    int
	replies   map[string][]string
	adminNote []string
	failSend  bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, replies: make(map[string][]string)}
}

func (m *fakeMessenger) Send(ctx context.Context, text string, opts SendOptions) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return 0, errors.New("network down")
	}
	m.nextID++
	m.sent = append(m.sent, sentMessage{ID: m.nextID, Text: text, Opts: opts})
	return m.nextID, nil
}

func (m *fakeMessenger) Pin(ctx context.Context, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = append(m.pinned, messageID)
	return nil
}

func (m *fakeMessenger) Unpin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unpins++
	return nil
}

func (m *fakeMessenger) BuildKeyboard(q *models.Question, opts KeyboardOptions) Keyboard {
	return fakeKeyboard{Question: q.Text, Reveal: opts.Reveal, ScoreProbe: opts.ScoreProbe}
}

func (m *fakeMessenger) UploadAttachments(ctx context.Context, q *models.Question) (Media, error) {
	if len(q.Attachments) == 0 {
		return nil, nil
	}
	return q.Attachments, nil
}

func (m *fakeMessenger) AnswerEvent(ctx context.Context, eventID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[eventID] = append(m.replies[eventID], text)
	return nil
}

func (m *fakeMessenger) NotifyAdmin(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminNote = append(m.adminNote, text)
	return nil
}

// questions returns the published question texts in order.
func (m *fakeMessenger) questions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if kb, ok := s.Opts.Keyboard.(fakeKeyboard); ok && !kb.Reveal {
			out = append(out, kb.Question)
		}
	}
	return out
}

func (m *fakeMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Text)
	}
	return out
}

func (m *fakeMessenger) count(text string) int {
	n := 0
	for _, t := range m.texts() {
		if t == text {
			n++
		}
	}
	return n
}

func (m *fakeMessenger) notes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.adminNote...)
}

type fakeChat struct {
	mu      sync.Mutex
	list    []models.Participant
	removed []int64
	failIDs map[int64]bool
	listErr error
}

func newFakeChat(list ...models.Participant) *fakeChat {
	return &fakeChat{list: list, failIDs: make(map[int64]bool)}
}

func (c *fakeChat) Members(ctx context.Context) ([]models.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]models.Participant(nil), c.list...), nil
}

func (c *fakeChat) Remove(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIDs[userID] {
		return fmt.Errorf("cannot remove %d", userID)
	}
	c.removed = append(c.removed, userID)
	return nil
}

func (c *fakeChat) DisplayName(ctx context.Context, userID int64) (string, error) {
	return "user" + strconv.FormatInt(userID, 10), nil
}

func (c *fakeChat) removedIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.removed...)
}

type fakePools struct {
	mu        sync.Mutex
	pools     map[string][]models.Question
	versions  map[string]int
	malformed map[string]bool
}

func newFakePools() *fakePools {
	return &fakePools{
		pools:     make(map[string][]models.Question),
		versions:  make(map[string]int),
		malformed: make(map[string]bool),
	}
}

func (p *fakePools) set(name string, qs []models.Question) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools[name] = qs
	p.malformed[name] = false
	p.versions[name]++
}

func (p *fakePools) breakPool(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.malformed[name] = true
	p.versions[name]++
}

func (p *fakePools) Load(ctx context.Context, name string) ([]models.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.malformed[name] {
		return nil, apperrors.New(apperrors.ErrCodeMalformedPool, "bad json in "+name)
	}
	qs, ok := p.pools[name]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeNotFound, "no pool "+name)
	}
	return append([]models.Question(nil), qs...), nil
}

func (p *fakePools) Version(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strconv.Itoa(p.versions[name]), nil
}

type memStore struct {
	mu    sync.Mutex
	saves []recovery.Checkpoint
	flags []recovery.Flag
}

func (s *memStore) SaveCheckpoint(ctx context.Context, cp recovery.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, cp)
	return nil
}

func (s *memStore) LoadCheckpoint(ctx context.Context) (*recovery.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil, nil
	}
	cp := s.saves[len(s.saves)-1]
	return &cp, nil
}

func (s *memStore) RaiseFlag(ctx context.Context, flag recovery.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = append(s.flags, flag)
	return nil
}

func (s *memStore) Flags(ctx context.Context) ([]recovery.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recovery.Flag(nil), s.flags...), nil
}

func (s *memStore) ClearFlags(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []recovery.Flag
	for _, f := range s.flags {
		if !f.RaisedAt.Before(before) {
			kept = append(kept, f)
		}
	}
	removed := len(s.flags) - len(kept)
	s.flags = kept
	return removed, nil
}

func (s *memStore) last() recovery.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[len(s.saves)-1]
}

// closedRounds returns the checkpoints written when a round was reconciled, in order.
func (s *memStore) closedRounds() []recovery.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recovery.Checkpoint
	for _, cp := range s.saves {
		if !cp.RoundOpen && !cp.Finished {
			out = append(out, cp)
		}
	}
	return out
}

// tickWaiter returns immediately and calls onTick on every wait.
type tickWaiter struct {
	ticks  int
	onTick func(n int)
}

func (w *tickWaiter) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.ticks++
	if w.onTick != nil {
		w.onTick(w.ticks)
	}
	return ctx.Err()
}

func member(id int64, name string) models.Participant {
	return models.Participant{ID: id, Name: name}
}

func admin(id int64, name string) models.Participant {
	return models.Participant{ID: id, Name: name, IsAdmin: true}
}

func makeQuestions(prefix string, n int) []models.Question {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			Text: fmt.Sprintf("%s %d", prefix, i),
			Options: []models.Option{
				{Text: "yes", Correct: true},
				{Text: "no"},
			},
			Points: 2,
		}
	}
	return qs
}

// harness wires an engine to fakes. Answers are injected on the first countdown tick of each
// published question, following plan[publishNumber].
type harness struct {
	session   *Session
	engine    *Engine
	messenger *fakeMessenger
	chat      *fakeChat
	pools     *fakePools
	store     *memStore
	waiter    *tickWaiter

	plan      []map[int64]bool
	answered  map[int]bool
	results   []Result
	afterTick func(h *harness)
}

func newHarness(mode Mode, seed int64, people ...models.Participant) *harness {
	h := &harness{
		session:   NewSession(mode, seed),
		messenger: newFakeMessenger(),
		chat:      newFakeChat(people...),
		pools:     newFakePools(),
		store:     &memStore{},
		answered:  make(map[int]bool),
	}
	h.pools.set(models.PoolMain, makeQuestions("main", 10))
	h.pools.set(models.PoolBlitz, makeQuestions("blitz", 5))

	h.waiter = &tickWaiter{onTick: func(int) { h.tick() }}
	h.engine = NewEngine(h.session, Config{
		RoundDuration:   time.Minute,
		PollInterval:    5 * time.Second,
		RandomSelection: true,
	}, Deps{
		Messenger: h.messenger,
		Members:   h.chat,
		Pools:     h.pools,
		Store:     h.store,
	}, WithWaiter(h.waiter), WithClock(func() time.Time { return time.Unix(1700000000, 0) }))

	if _, err := h.session.Collect(context.Background(), h.chat); err != nil {
		panic(err)
	}
	return h
}

func (h *harness) tick() {
	published := len(h.messenger.questions())
	idx := published - 1
	if idx >= 0 && !h.answered[idx] && h.session.answersOpen() {
		h.answered[idx] = true
		if idx < len(h.plan) {
			for id, correct := range h.plan[idx] {
				h.results = append(h.results, h.session.Submit(AnswerEvent{UserID: id, EventID: fmt.Sprintf("e%d-%d", idx, id), Correct: correct}))
			}
		}
	}
	if h.afterTick != nil {
		h.afterTick(h)
	}
}

func (s *Session) answersOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.answerBlocked
}
