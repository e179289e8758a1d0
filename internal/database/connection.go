package database

import (
	"fmt"
	"time"

	"github.com/mroshb/quiz_bot/internal/config"
	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	return Open(cfg.GetDSN(), cfg.AppEnv)
}

// Open connects to Postgres with the pool settings used by the bot.
func Open(dsn, appEnv string) (*gorm.DB, error) {
	var logLevel gormlogger.LogLevel
	if appEnv == "development" {
		logLevel = gormlogger.Info
	} else {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true, // Pool replacement opens its own transaction
		PrepareStmt:            true, // Cache prepared statements
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// One quiz per process: the driver and the import command are the only readers.
	sqlDB.SetMaxIdleConns(2)                   // Version polls reuse a warm connection
	sqlDB.SetMaxOpenConns(10)                  // Loads and imports never run in parallel bursts
	sqlDB.SetConnMaxLifetime(time.Hour)        // Cycle connections hourly
	sqlDB.SetConnMaxIdleTime(10 * time.Minute) // Close idle connections after 10m

	logger.Info("Database connected")
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("Failed to close database", "error", err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	if err := db.AutoMigrate(&models.Question{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// SeedQuestions inserts a small main pool when the table has none, so a fresh install can run a quiz.
func SeedQuestions(db *gorm.DB) error {
	// Check if main pool already has questions
	var count int64
	if err := db.Model(&models.Question{}).Where("pool = ?", models.PoolMain).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count questions: %w", err)
	}
	if count > 0 {
		return nil
	}

	logger.Info("Seeding sample questions...")
	questions := []models.Question{
		{
			Text:    "What is the capital of France?",
			Options: []models.Option{{Text: "Paris", Correct: true}, {Text: "London"}, {Text: "Berlin"}, {Text: "Rome"}},
			Points:  1,
		},
		{
			Text:    "Which planet is known as the Red Planet?",
			Options: []models.Option{{Text: "Earth"}, {Text: "Mars", Correct: true}, {Text: "Jupiter"}, {Text: "Venus"}},
			Points:  1,
			Layout:  models.LayoutGrid,
		},
		{
			Text:    "What is the largest ocean on Earth?",
			Options: []models.Option{{Text: "Atlantic"}, {Text: "Indian"}, {Text: "Pacific", Correct: true}, {Text: "Arctic"}},
			Points:  1,
		},
		{
			Text:    "Who invented the telephone?",
			Options: []models.Option{{Text: "Thomas Edison"}, {Text: "Alexander Graham Bell", Correct: true}, {Text: "Nikola Tesla"}},
			Points:  2,
		},
		{
			Text:    "What is the currency of Japan?",
			Options: []models.Option{{Text: "Yuan"}, {Text: "Won"}, {Text: "Yen", Correct: true}},
			Points:  1,
			Layout:  models.LayoutGrid,
		},
	}
	// Keep the listed order for sequential selection
	for i := range questions {
		questions[i].Pool = models.PoolMain
		questions[i].Position = i
	}
	return db.Create(&questions).Error
}
