package quiz

import (
	"context"
	"sync"

	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/recovery"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

// Controller owns the round driver goroutine. Cancelling its context is the only stop signal.
type Controller struct {
	engine *Engine
	guard  *recovery.Guard

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(engine *Engine, guard *recovery.Guard) *Controller {
	return &Controller{engine: engine, guard: guard}
}

func (c *Controller) Session() *Session {
	return c.engine.session
}

// Start launches the round driver under the recovery guard.
func (c *Controller) Start(ctx context.Context) Outcome {
	return c.start(ctx, true)
}

func (c *Controller) start(ctx context.Context, announce bool) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runningLocked() {
		return OutcomeAlreadyRunning
	}
	s := c.engine.session
	if s.Finished() {
		return OutcomeQuizFinished
	}

	resuming := s.Resuming()
	announce = announce && !resuming
	s.markStarted()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		c.guard.Run(runCtx, "quiz driver", func(ctx context.Context) error {
			if announce {
				key := messages.StartQuiz
				if s.Mode() == ModeScore {
					key = messages.StartQuizScore
				}
				c.engine.announce(ctx, key, messages.Data{}, SendOptions{})
			}
			return c.engine.Run(ctx)
		})
	}()

	logger.Info("Quiz started", "resuming", resuming)
	return OutcomeAccepted
}

// Stop cancels the driver, waits for it to return and writes the final checkpoint.
func (c *Controller) Stop(ctx context.Context) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.runningLocked() {
		return OutcomeAlreadyStopped
	}
	c.haltLocked()
	c.engine.session.suspend()

	c.engine.announce(ctx, messages.StopQuiz, messages.Data{}, SendOptions{})
	if err := c.engine.saveCheckpoint(ctx); err != nil {
		logger.Error("Failed to save checkpoint on stop", "error", err)
	}
	logger.Info("Quiz stopped", "round", c.engine.session.Round())
	return OutcomeAccepted
}

// Shutdown stops the driver if needed and always writes a final checkpoint for a started quiz.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runningLocked() {
		c.haltLocked()
	}
	if !c.engine.session.Started() {
		return nil
	}
	return c.engine.saveCheckpoint(ctx)
}

// Running reports whether the driver goroutine is alive.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

// Wait blocks until the current driver goroutine exits or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recover resumes from the last checkpoint when the policy allows it. It reports whether
// the quiz was resumed.
func (c *Controller) Recover(ctx context.Context, store recovery.Store, policy recovery.Policy) (bool, error) {
	cp, err := recovery.Load(ctx, store, policy)
	if err != nil {
		return false, err
	}
	if cp == nil {
		logger.Info("Starting a fresh session")
		return false, nil
	}

	e := c.engine
	e.session.Restore(*cp)
	logger.Info("Resuming from checkpoint", "round", cp.Round, "round_open", cp.RoundOpen, "saved_at", cp.SavedAt)

	if err := e.deps.Messenger.Unpin(ctx); err != nil {
		logger.Warn("Failed to unpin stale question", "error", err)
	}
	e.announce(ctx, messages.RecoveryStart, messages.Data{}, SendOptions{RemoveKeyboard: true})

	cleared, err := store.ClearFlags(ctx, e.now())
	if err != nil {
		logger.Warn("Failed to clear crash flags", "error", err)
	} else {
		logger.Info("Crash flags cleared", "count", cleared)
	}

	e.announce(ctx, messages.RecoveryFinish, messages.Data{Round: e.session.Round()}, SendOptions{})
	c.start(ctx, false)
	return true, nil
}

func (c *Controller) runningLocked() bool {
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Controller) haltLocked() {
	c.cancel()
	<-c.done
}
