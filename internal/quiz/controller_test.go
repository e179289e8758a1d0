package quiz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/recovery"
)

var blockingWaiter = WaiterFunc(func(ctx context.Context, d time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
})

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestController(h *harness) *Controller {
	return NewController(h.engine, recovery.NewGuard(h.store, h.messenger, messages.Default()))
}

func TestController_StartStopResume(t *testing.T) {
	h := newHarness(ModeNormal, 4, member(1, "Ann"), member(2, "Bob"), member(3, "Cid"))
	h.engine.waiter = blockingWaiter
	c := newTestController(h)
	ctx := context.Background()

	if got := c.Start(ctx); got != OutcomeAccepted {
		t.Fatalf("Start() = %v", got)
	}
	waitFor(t, "the open round checkpoint", func() bool { return h.store.count() > 0 })

	if got := c.Start(ctx); got != OutcomeAlreadyRunning {
		t.Errorf("second Start() = %v, want already running", got)
	}
	if got := c.Stop(ctx); got != OutcomeAccepted {
		t.Fatalf("Stop() = %v", got)
	}
	if c.Running() {
		t.Fatalf("driver still running after Stop")
	}
	if got := c.Stop(ctx); got != OutcomeAlreadyStopped {
		t.Errorf("second Stop() = %v, want already stopped", got)
	}

	if h.messenger.count(render(messages.StopQuiz, messages.Data{})) != 1 {
		t.Errorf("expected one stop announcement")
	}
	if last := h.store.last(); !last.RoundOpen || last.Round != 1 {
		t.Errorf("stop checkpoint = %+v, want the open round", last)
	}

	if got := c.Start(ctx); got != OutcomeAccepted {
		t.Fatalf("restart = %v", got)
	}
	waitFor(t, "the replayed question", func() bool { return len(h.messenger.questions()) == 2 })

	qs := h.messenger.questions()
	if qs[0] != qs[1] {
		t.Errorf("restart published %q, want the interrupted %q again", qs[1], qs[0])
	}
	if h.messenger.count(render(messages.StartQuiz, messages.Data{})) != 1 {
		t.Errorf("a resumed round must not announce the start again")
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if c.Running() {
		t.Errorf("driver still running after Shutdown")
	}
	if flags, _ := h.store.Flags(ctx); len(flags) != 0 {
		t.Errorf("a stop is not a fault, got flags %v", flags)
	}
}

func TestController_FinishedQuizCannotRestart(t *testing.T) {
	h := newHarness(ModeNormal, 4, member(1, "Ann"))
	c := newTestController(h)
	ctx := context.Background()

	if got := c.Start(ctx); got != OutcomeAccepted {
		t.Fatalf("Start() = %v", got)
	}
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if got := c.Start(ctx); got != OutcomeQuizFinished {
		t.Errorf("Start() after finish = %v, want quiz finished", got)
	}
	if h.messenger.count(render(messages.Winner, messages.Data{Name: "Ann"})) != 1 {
		t.Errorf("expected a winner announcement")
	}
}

func TestController_ScoreModeAnnouncement(t *testing.T) {
	h := newHarness(ModeScore, 4, member(1, "Ann"))
	h.engine.waiter = blockingWaiter
	c := newTestController(h)
	ctx := context.Background()

	c.Start(ctx)
	waitFor(t, "the first question", func() bool { return len(h.messenger.questions()) == 1 })
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	texts := h.messenger.texts()
	if texts[0] != render(messages.StartQuizScore, messages.Data{}) {
		t.Errorf("first message = %q, want the score mode greeting", texts[0])
	}
}

func TestController_DriverFaultRaisesFlag(t *testing.T) {
	h := newHarness(ModeNormal, 4, member(1, "Ann"), member(2, "Bob"))
	h.messenger.failSend = true
	c := newTestController(h)
	ctx := context.Background()

	c.Start(ctx)
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	flags, _ := h.store.Flags(ctx)
	if len(flags) != 1 || !strings.Contains(flags[0].Fault, "failed to publish question") {
		t.Fatalf("flags = %+v, want one publish fault", flags)
	}
	if len(h.messenger.notes()) == 0 {
		t.Errorf("the lead admin should receive the fault report")
	}
	if c.Running() {
		t.Errorf("driver should have exited")
	}
}

func TestController_Recover(t *testing.T) {
	openRound := recovery.Checkpoint{
		Mode:         string(ModeNormal),
		Members:      []models.Participant{member(1, "Ann"), member(2, "Bob"), member(3, "Cid")},
		Pool:         models.PoolMain,
		Used:         []int{0, 4, 2},
		CurrentIndex: 2,
		Round:        3,
		Seed:         4,
		RoundOpen:    true,
	}
	staleFlag := recovery.Flag{ID: "quiz_driver", Fault: "boom", RaisedAt: time.Unix(1600000000, 0)}

	t.Run("Resumes after a crash", func(t *testing.T) {
		h := newHarness(ModeNormal, 4)
		h.engine.waiter = blockingWaiter
		h.store.saves = []recovery.Checkpoint{openRound}
		h.store.flags = []recovery.Flag{staleFlag}
		c := newTestController(h)
		ctx := context.Background()

		resumed, err := c.Recover(ctx, h.store, recovery.Policy{})
		if err != nil || !resumed {
			t.Fatalf("Recover() = %v, %v", resumed, err)
		}
		waitFor(t, "the replayed question", func() bool { return len(h.messenger.questions()) == 1 })
		defer c.Shutdown(ctx)

		if qs := h.messenger.questions(); qs[0] != "main 2" {
			t.Errorf("replayed %q, want main 2", qs[0])
		}
		texts := h.messenger.texts()
		if texts[0] != render(messages.RecoveryStart, messages.Data{}) {
			t.Errorf("first message = %q, want the recovery notice", texts[0])
		}
		if h.messenger.count(render(messages.RecoveryFinish, messages.Data{Round: 3})) != 1 {
			t.Errorf("missing recovery finish announcement: %v", texts)
		}
		if h.messenger.count(render(messages.StartQuiz, messages.Data{})) != 0 {
			t.Errorf("recovery must not greet again")
		}
		if flags, _ := h.store.Flags(ctx); len(flags) != 0 {
			t.Errorf("flags = %v, want cleared", flags)
		}
	})

	t.Run("Clean shutdown starts fresh", func(t *testing.T) {
		h := newHarness(ModeNormal, 4)
		h.store.saves = []recovery.Checkpoint{openRound}
		c := newTestController(h)

		resumed, err := c.Recover(context.Background(), h.store, recovery.Policy{})
		if err != nil || resumed {
			t.Fatalf("Recover() = %v, %v; want a fresh start", resumed, err)
		}
		if len(h.messenger.texts()) != 0 || c.Running() {
			t.Errorf("a fresh start must stay idle and silent")
		}
	})
}

func TestController_ShutdownBeforeStart(t *testing.T) {
	h := newHarness(ModeNormal, 4, member(1, "Ann"))
	c := newTestController(h)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if h.store.count() != 0 {
		t.Errorf("an idle session must not be checkpointed")
	}
}
