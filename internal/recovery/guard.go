package recovery

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/mroshb/quiz_bot/pkg/utils"
)

const notifyTimeout = 10 * time.Second

// Notifier delivers fault reports to the lead administrator.
type Notifier interface {
	NotifyAdmin(ctx context.Context, text string) error
}

// Guard turns panics and unexpected errors of a unit of work into crash flags.
type Guard struct {
	store    Store
	notifier Notifier
	texts    *messages.Catalog
	now      func() time.Time
}

func NewGuard(store Store, notifier Notifier, texts *messages.Catalog) *Guard {
	return &Guard{
		store:    store,
		notifier: notifier,
		texts:    texts,
		now:      time.Now,
	}
}

// Run executes fn and reports whether it faulted. Faults never propagate to the caller.
// Cancellation is a normal exit, not a fault.
func (g *Guard) Run(ctx context.Context, unit string, fn func(ctx context.Context) error) (faulted bool) {
	defer func() {
		if r := recover(); r != nil {
			g.Report(ctx, unit, fmt.Errorf("panic: %v", r), string(debug.Stack()))
			faulted = true
		}
	}()

	err := fn(ctx)
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	g.Report(ctx, unit, err, fmt.Sprintf("%+v", err))
	return true
}

// Report logs the fault, raises a crash flag and sends the trace to the lead administrator.
func (g *Guard) Report(ctx context.Context, unit string, err error, trace string) {
	logger.Error("Unit of work failed", "unit", unit, "error", err, "stack", trace)

	// Reporting must outlive the cancellation that may have caused the fault.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	raisedAt := g.now()
	flag := Flag{
		ID:       FlagID(unit, raisedAt),
		Fault:    err.Error(),
		Trace:    trace,
		RaisedAt: raisedAt,
	}
	if ferr := g.store.RaiseFlag(reportCtx, flag); ferr != nil {
		logger.Error("Failed to raise crash flag", "unit", unit, "error", ferr)
	}

	if g.notifier == nil {
		return
	}
	text := g.texts.Render(messages.FaultReport, messages.Data{Unit: unit, Error: err.Error(), Trace: trace})
	for _, chunk := range utils.SplitMessage(text, utils.MaxMessageLen) {
		if nerr := g.notifier.NotifyAdmin(reportCtx, chunk); nerr != nil {
			logger.Warn("Failed to notify lead admin about fault", "unit", unit, "error", nerr)
			return
		}
	}
}

var unsafeID = regexp.MustCompile(`[^a-z0-9]+`)

// FlagID builds an identifier safe to use as a file name or a redis field.
func FlagID(unit string, at time.Time) string {
	slug := strings.Trim(unsafeID.ReplaceAllString(strings.ToLower(unit), "_"), "_")
	if slug == "" {
		slug = "unit"
	}
	return fmt.Sprintf("%s_at_%d_%s", slug, at.UnixNano(), utils.GenerateRandomID(4))
}
