package quiz

import (
	"context"
	"strings"
	"time"

	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

type Config struct {
	RoundDuration   time.Duration
	PollInterval    time.Duration
	RandomSelection bool
}

// Deps are the collaborators of the round driver.
type Deps struct {
	Messenger Messenger
	Members   ChatMembers
	Pools     PoolSource
	Store     Checkpointer
	Texts     *messages.Catalog
}

// Engine drives the round state machine:
//
//	Idle -> RoundInit -> QuestionSelect -> RoundOpen -> RoundCountdown -> RoundClose -> (RoundInit | Finished)
type Engine struct {
	session *Session
	cfg     Config
	deps    Deps
	waiter  Waiter
	now     func() time.Time
}

type Option func(*Engine)

func WithWaiter(w Waiter) Option {
	return func(e *Engine) { e.waiter = w }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(session *Session, cfg Config, deps Deps, opts ...Option) *Engine {
	if deps.Texts == nil {
		deps.Texts = messages.Default()
	}
	e := &Engine{
		session: session,
		cfg:     cfg,
		deps:    deps,
		waiter:  TimerWaiter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Session() *Session {
	return e.session
}

// Run loops over rounds until the quiz finishes (nil) or ctx is cancelled (ctx.Err()).
// A round cancelled during its countdown is left open and is not reconciled.
func (e *Engine) Run(ctx context.Context) error {
	s := e.session
	logger.Info("Quiz driver started", "mode", s.Mode(), "seed", s.Seed(), "round", s.Round())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Finished() {
			return nil
		}

		resume := s.takeResume()
		if !resume {
			finished, err := e.roundInit(ctx)
			if err != nil || finished {
				return err
			}
		}

		questions, err := e.loadPool(ctx)
		if err != nil {
			return err
		}
		if questions == nil {
			continue
		}

		q, err := e.selectQuestion(ctx, questions, resume)
		if err != nil {
			return err
		}
		if q == nil {
			continue
		}

		if err := e.openRound(ctx, q); err != nil {
			return err
		}
		if err := e.countdown(ctx); err != nil {
			return err
		}
		if err := e.closeRound(ctx, q); err != nil {
			return err
		}
	}
}

// roundInit decides whether the quiz can continue and activates blitz when two members remain.
func (e *Engine) roundInit(ctx context.Context) (bool, error) {
	s := e.session
	if s.Mode() == ModeScore {
		return false, nil
	}

	if s.rosterSize() <= finishBound {
		return true, e.finish(ctx)
	}
	if s.activateBlitz() {
		logger.Info("Blitz activated")
		e.announce(ctx, messages.BlitzStart, messages.Data{}, SendOptions{})
	}
	return false, nil
}

// loadPool returns the active pool, or nil after waiting out unreadable pool data.
func (e *Engine) loadPool(ctx context.Context) ([]models.Question, error) {
	name := e.session.poolName()
	questions, err := e.deps.Pools.Load(ctx, name)
	if err == nil {
		return questions, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !errors.HasCode(err, errors.ErrCodeMalformedPool) && !errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	logger.Warn("Question pool unreadable, waiting for a fix", "pool", name, "error", err)
	e.notifyAdmin(ctx, messages.MalformedPool, messages.Data{Pool: name, Error: err.Error()})
	return nil, e.waitForPoolChange(ctx, name)
}

// selectQuestion returns the question for this round, or nil when the loop must start over.
func (e *Engine) selectQuestion(ctx context.Context, questions []models.Question, resume bool) (*models.Question, error) {
	s := e.session

	s.mu.Lock()
	if resume {
		if s.currentIndex >= 0 && s.currentIndex < len(questions) {
			idx := s.currentIndex
			s.mu.Unlock()
			logger.Info("Replaying checkpointed question", "index", idx, "round", s.Round())
			return &questions[idx], nil
		}
		logger.Warn("Checkpointed question no longer exists, drawing a new one", "index", s.currentIndex, "pool_size", len(questions))
		s.resetRoundLocked()
	}

	idx, ok := nextIndex(e.cfg.RandomSelection, s.seed, len(questions), s.used, s.currentIndex)
	if ok {
		s.currentIndex = idx
		s.used = append(s.used, idx)
		s.mu.Unlock()
		logger.Debug("Question selected", "index", idx, "pool_size", len(questions))
		return &questions[idx], nil
	}
	mode, pool := s.mode, s.pool
	s.mu.Unlock()

	if mode == ModeScore {
		return nil, e.finish(ctx)
	}

	logger.Warn("Question pool exhausted", "pool", pool)
	e.notifyAdmin(ctx, messages.QuestionQueueFinish, messages.Data{Pool: pool})
	return nil, e.waitForPoolChange(ctx, pool)
}

// waitForPoolChange polls the pool version until it differs from the current one.
func (e *Engine) waitForPoolChange(ctx context.Context, name string) error {
	initial, err := e.deps.Pools.Version(ctx, name)
	if err != nil {
		initial = ""
	}

	for {
		if err := e.waiter.Wait(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
		v, err := e.deps.Pools.Version(ctx, name)
		if err == nil && v != initial {
			logger.Info("Question pool changed", "pool", name)
			return nil
		}
	}
}

// openRound publishes and pins the question, checkpoints the open round and only then
// accepts answers.
func (e *Engine) openRound(ctx context.Context, q *models.Question) error {
	s := e.session
	m := e.deps.Messenger

	media, err := m.UploadAttachments(ctx, q)
	if err != nil {
		logger.Warn("Failed to upload attachments, publishing without them", "error", err)
		media = nil
	}
	keyboard := m.BuildKeyboard(q, KeyboardOptions{ScoreProbe: s.Mode() == ModeScore})
	text := e.deps.Texts.Render(messages.Question, messages.Data{Round: s.Round(), Text: q.Text})

	messageID, err := m.Send(ctx, text, SendOptions{Keyboard: keyboard, Media: media})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeTransport, "failed to publish question")
	}
	if err := m.Pin(ctx, messageID); err != nil {
		logger.Warn("Failed to pin question", "message_id", messageID, "error", err)
	}

	s.markPublished(q, messageID)
	if err := e.saveCheckpoint(ctx); err != nil {
		return err
	}
	s.openAnswers()
	return nil
}

// countdown waits for the round to end. In blitz it waits for both members to answer,
// otherwise until the elapsed time exceeds the round duration.
func (e *Engine) countdown(ctx context.Context) error {
	s := e.session

	if s.blitzActive() {
		for !s.allAnswered() {
			if err := e.waiter.Wait(ctx, e.cfg.PollInterval); err != nil {
				return err
			}
		}
		return nil
	}

	for s.elapsedTime() <= e.cfg.RoundDuration {
		if err := e.waiter.Wait(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
		s.addElapsed(e.cfg.PollInterval)
	}
	return nil
}

// closeRound reconciles the round: eliminations, answer reveal, checkpoint.
func (e *Engine) closeRound(ctx context.Context, q *models.Question) error {
	s := e.session
	m := e.deps.Messenger

	toKick, everyone := s.closeAnswers()
	round := s.Round()
	e.announce(ctx, messages.AnswerTimeOver, messages.Data{}, SendOptions{RemoveKeyboard: true})

	if s.Mode() != ModeScore {
		if len(toKick) == 0 {
			e.announce(ctx, messages.NobodyKicked, messages.Data{Round: round}, SendOptions{})
		} else {
			kicked := 0
			for _, id := range toKick {
				outcome, err := s.Kick(ctx, e.deps.Members, id)
				if err != nil {
					logger.Warn("Failed to eliminate member", "user_id", id, "error", err)
					continue
				}
				if outcome == OutcomeAccepted {
					kicked++
				}
			}
			logger.Info("Round eliminations", "round", round, "planned", len(toKick), "kicked", kicked)

			if everyone {
				e.announce(ctx, messages.EveryoneKicked, messages.Data{Round: round}, SendOptions{})
			} else {
				e.announce(ctx, messages.MembersKicked, messages.Data{Round: round, Count: kicked}, SendOptions{})
			}
		}
	}

	if err := m.Unpin(ctx); err != nil {
		logger.Warn("Failed to unpin question", "error", err)
	}
	reveal := m.BuildKeyboard(q, KeyboardOptions{Reveal: true})
	answers := strings.Join(q.CorrectOptions(), ", ")
	e.announce(ctx, messages.RightAnswer, messages.Data{Answers: answers}, SendOptions{Keyboard: reveal})

	s.finishRound()
	return e.saveCheckpoint(ctx)
}

// finish declares the result and persists a finished checkpoint.
func (e *Engine) finish(ctx context.Context) error {
	s := e.session

	podium, err := s.Winner()
	switch {
	case err != nil:
		logger.Info("Quiz finished without a winner", "reason", err)
		e.announce(ctx, messages.NoWinner, messages.Data{}, SendOptions{RemoveKeyboard: true})
	case s.Mode() == ModeScore:
		logger.Info("Quiz finished", "winner", podium.Winner.ID, "score", podium.Winner.Score)
		e.announce(ctx, messages.ScoreFinish, messages.Data{
			Best:       podium.Winner.Name,
			BestScore:  podium.Winner.Score,
			Worst:      podium.Last.Name,
			WorstScore: podium.Last.Score,
		}, SendOptions{RemoveKeyboard: true})
	default:
		logger.Info("Quiz finished", "winner", podium.Winner.ID)
		e.announce(ctx, messages.Winner, messages.Data{Name: podium.Winner.Name}, SendOptions{RemoveKeyboard: true})
	}

	s.markFinished()
	if err := e.deps.Messenger.Unpin(ctx); err != nil {
		logger.Warn("Failed to unpin after finish", "error", err)
	}
	return e.saveCheckpoint(ctx)
}

func (e *Engine) saveCheckpoint(ctx context.Context) error {
	cp := e.session.Snapshot(e.now())
	if err := e.deps.Store.SaveCheckpoint(ctx, cp); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to save checkpoint")
	}
	logger.Debug("Checkpoint saved", "round", cp.Round, "round_open", cp.RoundOpen, "used", len(cp.Used))
	return nil
}

// announce sends a chat message. Failures are logged; announcements never fail a round.
func (e *Engine) announce(ctx context.Context, key string, data messages.Data, opts SendOptions) {
	text := e.deps.Texts.Render(key, data)
	if _, err := e.deps.Messenger.Send(ctx, text, opts); err != nil {
		logger.Warn("Failed to send announcement", "key", key, "error", err)
	}
}

func (e *Engine) notifyAdmin(ctx context.Context, key string, data messages.Data) {
	if err := e.deps.Messenger.NotifyAdmin(ctx, e.deps.Texts.Render(key, data)); err != nil {
		logger.Warn("Failed to notify admin", "key", key, "error", err)
	}
}
