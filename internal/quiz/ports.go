package quiz

import (
	"context"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/recovery"
)

// Keyboard is a transport-specific reply markup produced by Messenger.BuildKeyboard.
type Keyboard any

// Media is a transport-specific attachment set produced by Messenger.UploadAttachments.
type Media any

type SendOptions struct {
	Keyboard       Keyboard
	Media          Media
	RemoveKeyboard bool
}

type KeyboardOptions struct {
	// Reveal marks the correct options and disables answering.
	Reveal bool
	// ScoreProbe adds the "my score" button.
	ScoreProbe bool
}

// Messenger publishes to the quiz chat and replies to answer events.
type Messenger interface {
	Send(ctx context.Context, text string, opts SendOptions) (messageID int, err error)
	Pin(ctx context.Context, messageID int) error
	Unpin(ctx context.Context) error
	BuildKeyboard(q *models.Question, opts KeyboardOptions) Keyboard
	UploadAttachments(ctx context.Context, q *models.Question) (Media, error)
	AnswerEvent(ctx context.Context, eventID, text string) error
	NotifyAdmin(ctx context.Context, text string) error
}

// ChatMembers is the transport view of chat membership.
type ChatMembers interface {
	Members(ctx context.Context) ([]models.Participant, error)
	Remove(ctx context.Context, userID int64) error
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// PoolSource loads a named question pool. Version changes whenever the pool content may have changed.
type PoolSource interface {
	Load(ctx context.Context, name string) ([]models.Question, error)
	Version(ctx context.Context, name string) (string, error)
}

type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, cp recovery.Checkpoint) error
}

// AnswerEvent is one inbound answer click. Duplicate deliveries carry the same user and round.
type AnswerEvent struct {
	UserID  int64
	EventID string
	Correct bool
	// Probe asks for the current score instead of answering.
	Probe bool
}
