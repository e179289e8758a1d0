package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"gorm.io/gorm"
)

// QuestionRepository serves question pools stored in the questions table.
type QuestionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Load returns the pool ordered by position. A pool without rows is NOT_FOUND.
func (r *QuestionRepository) Load(ctx context.Context, pool string) ([]models.Question, error) {
	var questions []models.Question
	result := r.db.WithContext(ctx).
		Where("pool = ?", pool).
		Order("position ASC").
		Find(&questions)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to load questions")
	}
	if len(questions) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("pool %s has no questions", pool))
	}

	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMalformedPool, fmt.Sprintf("pool %s, question id %d", pool, questions[i].ID))
		}
	}
	return questions, nil
}

// Version changes whenever a row of the pool is added, removed or updated.
func (r *QuestionRepository) Version(ctx context.Context, pool string) (string, error) {
	var row struct {
		Count  int64
		Latest sql.NullTime
	}
	result := r.db.WithContext(ctx).
		Model(&models.Question{}).
		Select("COUNT(*) AS count, MAX(updated_at) AS latest").
		Where("pool = ?", pool).
		Scan(&row)

	if result.Error != nil {
		return "", errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to read pool version")
	}

	var latest int64
	if row.Latest.Valid {
		latest = row.Latest.Time.UnixNano()
	}
	return fmt.Sprintf("%d:%d", row.Count, latest), nil
}

// ReplacePool swaps the whole pool for questions in one transaction.
func (r *QuestionRepository) ReplacePool(ctx context.Context, pool string, questions []models.Question) error {
	for i := range questions {
		questions[i].ID = 0
		questions[i].Pool = pool
		questions[i].Position = i
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pool = ?", pool).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		return tx.CreateInBatches(&questions, 100).Error
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to replace pool")
	}
	return nil
}

// Pools lists the pool names that have at least one question.
func (r *QuestionRepository) Pools(ctx context.Context) ([]string, error) {
	var pools []string
	result := r.db.WithContext(ctx).
		Model(&models.Question{}).
		Distinct("pool").
		Order("pool").
		Pluck("pool", &pools)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list pools")
	}
	return pools, nil
}
