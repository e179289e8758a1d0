package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Pool names
const (
	PoolMain  = "questions_list"
	PoolBlitz = "blitz_questions_list"
)

// Keyboard layouts
const (
	LayoutPerLine = "per_line"
	LayoutGrid    = "grid"
)

type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

type Question struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Pool        string    `gorm:"type:varchar(64);not null;index:idx_pool_position,priority:1" json:"-"`
	Position    int       `gorm:"not null;index:idx_pool_position,priority:2" json:"-"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Options     []Option  `gorm:"serializer:json;type:jsonb" json:"options"`
	Points      int       `gorm:"default:1" json:"points,omitempty"`
	Attachments []string  `gorm:"serializer:json;type:jsonb" json:"attachments,omitempty"`
	Layout      string    `gorm:"type:varchar(20);default:'per_line'" json:"layout,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (Question) TableName() string {
	return "questions"
}

// Validate checks that the question can be published and answered.
func (q *Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("question text is empty")
	}
	if len(q.Options) == 0 {
		return fmt.Errorf("question %q has no options", q.Text)
	}
	correct := 0
	for _, o := range q.Options {
		if o.Text == "" {
			return fmt.Errorf("question %q has an empty option", q.Text)
		}
		if o.Correct {
			correct++
		}
	}
	if correct == 0 {
		return fmt.Errorf("question %q has no correct option", q.Text)
	}
	switch q.Layout {
	case "", LayoutPerLine, LayoutGrid:
	default:
		return fmt.Errorf("question %q has unknown layout %q", q.Text, q.Layout)
	}
	if q.Points < 0 {
		return fmt.Errorf("question %q has negative points", q.Text)
	}
	return nil
}

// Score is the number of points a correct (or wrong, negated) answer is worth.
func (q *Question) Score() int {
	if q.Points == 0 {
		return 1
	}
	return q.Points
}

// CorrectOptions returns the texts of the correct options in order.
func (q *Question) CorrectOptions() []string {
	var out []string
	for _, o := range q.Options {
		if o.Correct {
			out = append(out, o.Text)
		}
	}
	return out
}

// BeforeSave hook for validation
func (q *Question) BeforeSave(tx *gorm.DB) error {
	if q.Pool == "" {
		return gorm.ErrInvalidData
	}
	if q.Layout == "" {
		q.Layout = LayoutPerLine
	}
	if err := q.Validate(); err != nil {
		return fmt.Errorf("%w: %v", gorm.ErrInvalidData, err)
	}
	return nil
}
