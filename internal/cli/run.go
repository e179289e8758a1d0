package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/handlers"
	"github.com/mroshb/quiz_bot/internal/messages"
	"github.com/mroshb/quiz_bot/internal/middleware"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/internal/recovery"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/mroshb/quiz_bot/telegram"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewRunCmd builds the subcommand that runs the bot until it is interrupted.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
}

func runBot(parent context.Context) (err error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateProductionSecurity(); err != nil {
		return fmt.Errorf("production security validation failed: %w", err)
	}

	texts := messages.Default()
	if cfg.MessagesFile != "" {
		if texts, err = messages.Load(cfg.MessagesFile); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openRecoveryStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	pools, closePools, err := openPoolSource(cfg)
	if err != nil {
		return err
	}
	defer closePools()

	bot, err := telegram.InitBot(cfg)
	if err != nil {
		return err
	}
	guard := recovery.NewGuard(store, bot, texts)

	// The process driver itself: any fault that escapes raises a flag so the next start resumes.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			guard.Report(ctx, "process", err, string(debug.Stack()))
			return
		}
		if err != nil && !stderrors.Is(err, context.Canceled) {
			guard.Report(ctx, "process", err, fmt.Sprintf("%+v", err))
		}
	}()

	session := quiz.NewSession(quiz.Mode(cfg.QuizMode), cfg.Seed())
	engine := quiz.NewEngine(session, quiz.Config{
		RoundDuration:   cfg.GetRoundDuration(),
		PollInterval:    cfg.PollInterval,
		RandomSelection: cfg.RandomSelection,
	}, quiz.Deps{
		Messenger: bot,
		Members:   bot,
		Pools:     pools,
		Store:     store,
		Texts:     texts,
	})
	controller := quiz.NewController(engine, guard)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerUser, cfg.RateLimitWindow)
	h := handlers.NewHandlerManager(cfg, controller, bot, texts, limiter, guard)

	resumed, err := controller.Recover(ctx, store, recovery.Policy{
		Ignore: cfg.IgnoreSaveState,
		Force:  cfg.ForceLoadSaveState,
	})
	if err != nil {
		return fmt.Errorf("failed to recover: %w", err)
	}
	if resumed {
		h.MarkCollected()
	}

	logger.Info("Bot started successfully", "env", cfg.AppEnv, "mode", cfg.QuizMode, "resumed", resumed)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx, h)
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	err = g.Wait()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := controller.Shutdown(shutdownCtx); serr != nil {
		logger.Error("Failed to save final checkpoint", "error", serr)
		if err == nil {
			err = serr
		}
	}
	logger.Info("Bot stopped")
	return err
}
