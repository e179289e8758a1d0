package cli

import (
	"context"
	"fmt"

	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/database"
	"github.com/mroshb/quiz_bot/internal/pool"
	"github.com/mroshb/quiz_bot/internal/quiz"
	"github.com/mroshb/quiz_bot/internal/recovery"
	filestore "github.com/mroshb/quiz_bot/internal/recovery/file"
	redisstore "github.com/mroshb/quiz_bot/internal/recovery/redis"
	"github.com/mroshb/quiz_bot/internal/repositories"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func noop() {}

// openRecoveryStore opens the configured checkpoint backend. The returned func releases it.
func openRecoveryStore(ctx context.Context, cfg *config.Config) (recovery.Store, func(), error) {
	switch cfg.RecoveryBackend {
	case config.RecoveryBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Recovery backend ready", "backend", "redis", "addr", cfg.RedisAddr)
		return redisstore.NewStore(client, ""), func() { client.Close() }, nil

	default:
		store, err := filestore.NewStore(cfg.DumpDir)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Recovery backend ready", "backend", "file", "dir", cfg.DumpDir)
		return store, noop, nil
	}
}

// openPoolSource opens the configured question pool source. A database source is migrated and
// seeded on first use.
func openPoolSource(cfg *config.Config) (quiz.PoolSource, func(), error) {
	if cfg.PoolSource != config.PoolSourceDatabase {
		logger.Info("Question pools ready", "source", "file", "dir", cfg.DataDir)
		return pool.NewFileSource(cfg.DataDir), noop, nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, noop, err
	}
	if err := database.SeedQuestions(db); err != nil {
		logger.Warn("Failed to seed questions", "error", err)
	}
	logger.Info("Question pools ready", "source", "database", "host", cfg.DBHost)
	return repositories.NewQuestionRepository(db), func() { database.Close(db) }, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		database.Close(db)
		return nil, err
	}
	return db, nil
}
