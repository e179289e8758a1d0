package recovery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

// Checkpoint is a durable snapshot of the quiz session.
type Checkpoint struct {
	Mode          string               `json:"mode"`
	Members       []models.Participant `json:"members"`
	Admins        []models.Participant `json:"admins"`
	Pool          string               `json:"pool"`
	Used          []int                `json:"used"`
	CurrentIndex  int                  `json:"current_index"`
	Round         int                  `json:"round"`
	Elapsed       time.Duration        `json:"elapsed"`
	Seed          int64                `json:"seed"`
	Blitz         bool                 `json:"blitz"`
	RoundOpen     bool                 `json:"round_open"`
	Answered      []int64              `json:"answered,omitempty"`
	AnsweredRight []int64              `json:"answered_right,omitempty"`
	MessageID     int                  `json:"message_id,omitempty"`
	Finished      bool                 `json:"finished"`
	SavedAt       time.Time            `json:"saved_at"`
}

// Flag marks an unhandled fault. Any flag on disk makes the next start resume from the checkpoint.
type Flag struct {
	ID       string    `json:"id"`
	Fault    string    `json:"fault"`
	Trace    string    `json:"trace"`
	RaisedAt time.Time `json:"raised_at"`
}

type Store interface {
	// SaveCheckpoint atomically replaces the stored checkpoint.
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	// LoadCheckpoint returns nil without error when nothing was saved.
	LoadCheckpoint(ctx context.Context) (*Checkpoint, error)
	RaiseFlag(ctx context.Context, flag Flag) error
	// Flags returns all flags ordered by RaisedAt.
	Flags(ctx context.Context) ([]Flag, error)
	// ClearFlags removes flags raised strictly before the given time.
	ClearFlags(ctx context.Context, before time.Time) (int, error)
}

// Policy holds the startup recovery switches. Ignore wins over Force.
type Policy struct {
	Ignore bool
	Force  bool
}

// Load returns the checkpoint to resume from, or nil for a fresh start.
func Load(ctx context.Context, store Store, policy Policy) (*Checkpoint, error) {
	if policy.Ignore {
		return nil, nil
	}

	cp, err := store.LoadCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	if cp.Finished {
		// Flags older than a finished quiz belong to it and must not resume the next one
		if cleared, err := store.ClearFlags(ctx, cp.SavedAt); err != nil {
			logger.Warn("Failed to clear flags of a finished quiz", "error", err)
		} else if cleared > 0 {
			logger.Info("Cleared flags of a finished quiz", "count", cleared)
		}
		return nil, nil
	}

	if policy.Force {
		return cp, nil
	}

	flags, err := store.Flags(ctx)
	if err != nil {
		return nil, err
	}
	if len(flags) == 0 {
		return nil, nil
	}
	return cp, nil
}

// EncodeCheckpoint serializes cp for a store backend.
func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to encode checkpoint")
	}
	return data, nil
}

func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to decode checkpoint")
	}
	return &cp, nil
}
