package quiz

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/recovery"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

type Mode string

const (
	ModeNormal Mode = "normal"
	ModeBlitz  Mode = "blitz"
	ModeScore  Mode = "score"
)

func (m Mode) Valid() bool {
	return m == ModeNormal || m == ModeBlitz || m == ModeScore
}

const (
	finishBound    = 1
	blitzThreshold = 2
)

// ErrNoWinner is returned by Winner when nobody is left to win.
var ErrNoWinner = errors.New(errors.ErrCodeNoWinner, "no participant left to declare a winner")

// Podium is the end-of-quiz result. Last is only set in Score mode.
type Podium struct {
	Winner models.Participant
	Last   models.Participant
}

// Session is the single mutable quiz state shared by the round driver and answer handlers.
// All fields are guarded by mu; methods ending in Locked expect it to be held.
type Session struct {
	mu sync.Mutex

	mode   Mode
	seed   int64
	roster *Roster

	pool         string
	used         []int
	currentIndex int
	current      *models.Question
	round        int
	elapsed      time.Duration
	messageID    int

	answerBlocked bool
	blitz         bool
	roundOpen     bool
	resuming      bool
	finished      bool
	started       bool

	answered      map[int64]struct{}
	answeredRight map[int64]struct{}

	// kicking holds ids whose removal from the chat is in flight.
	kicking map[int64]struct{}
}

func NewSession(mode Mode, seed int64) *Session {
	return &Session{
		mode:          mode,
		seed:          seed,
		roster:        NewRoster(),
		pool:          models.PoolMain,
		currentIndex:  -1,
		round:         1,
		answerBlocked: true,
		answered:      make(map[int64]struct{}),
		answeredRight: make(map[int64]struct{}),
		kicking:       make(map[int64]struct{}),
	}
}

// Restore replaces the session state with a checkpoint. A checkpoint taken inside an open
// round makes the next round replay its question instead of drawing a new one.
func (s *Session) Restore(cp recovery.Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := Mode(cp.Mode); m.Valid() {
		if m != s.mode {
			logger.Warn("Checkpoint mode differs from configured mode, keeping checkpoint mode", "checkpoint", m, "configured", s.mode)
		}
		s.mode = m
	}
	if cp.Seed != 0 {
		s.seed = cp.Seed
	}

	s.roster = NewRoster()
	for _, p := range cp.Admins {
		p.IsAdmin = true
		s.roster.Add(p)
	}
	for _, p := range cp.Members {
		p.IsAdmin = false
		s.roster.Add(p)
	}

	s.pool = cp.Pool
	if s.pool == "" {
		s.pool = models.PoolMain
	}
	s.used = append([]int(nil), cp.Used...)
	s.currentIndex = cp.CurrentIndex
	s.round = cp.Round
	if s.round < 1 {
		s.round = 1
	}
	s.elapsed = cp.Elapsed
	s.messageID = cp.MessageID
	s.blitz = cp.Blitz
	s.roundOpen = cp.RoundOpen
	s.resuming = cp.RoundOpen
	s.finished = cp.Finished
	s.started = true
	s.answerBlocked = true
	s.current = nil

	s.answered = toSet(cp.Answered)
	s.answeredRight = toSet(cp.AnsweredRight)
}

// Snapshot captures the session as a checkpoint.
func (s *Session) Snapshot(now time.Time) recovery.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

func (s *Session) snapshotLocked(now time.Time) recovery.Checkpoint {
	return recovery.Checkpoint{
		Mode:          string(s.mode),
		Members:       s.roster.Members(),
		Admins:        s.roster.Admins(),
		Pool:          s.pool,
		Used:          append([]int(nil), s.used...),
		CurrentIndex:  s.currentIndex,
		Round:         s.round,
		Elapsed:       s.elapsed,
		Seed:          s.seed,
		Blitz:         s.blitz,
		RoundOpen:     s.roundOpen,
		Answered:      s.orderedLocked(s.answered),
		AnsweredRight: s.orderedLocked(s.answeredRight),
		MessageID:     s.messageID,
		Finished:      s.finished,
		SavedAt:       now,
	}
}

// orderedLocked lists set members in roster order, then any ids no longer in the roster.
func (s *Session) orderedLocked(set map[int64]struct{}) []int64 {
	if len(set) == 0 {
		return nil
	}
	out := make([]int64, 0, len(set))
	seen := make(map[int64]struct{}, len(set))
	for _, id := range s.roster.MemberIDs() {
		if _, ok := set[id]; ok {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	for id := range set {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Seed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed
}

func (s *Session) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) Resuming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resuming
}

func (s *Session) IsAdmin(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.IsAdmin(userID)
}

func (s *Session) Members() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Members()
}

func (s *Session) Admins() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Admins()
}

// Collect merges the chat membership into the roster. Known ids are left untouched and
// nobody is removed. It returns how many participants were added.
func (s *Session) Collect(ctx context.Context, chat ChatMembers) (int, error) {
	list, err := chat.Members(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeTransport, "failed to enumerate chat members")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, p := range list {
		if s.roster.Add(p) {
			added++
		}
	}
	return added, nil
}

// Kick removes a member from the chat and then from the roster. A failed removal leaves the
// roster unchanged. The chat call runs outside the lock; a second kick of an id already being
// removed returns NotParticipant without calling the chat.
func (s *Session) Kick(ctx context.Context, chat ChatMembers, userID int64) (Outcome, error) {
	s.mu.Lock()
	switch {
	case s.roster.IsAdmin(userID):
		s.mu.Unlock()
		return OutcomeCannotKickAdmin, nil
	case !s.roster.IsMember(userID):
		s.mu.Unlock()
		return OutcomeNotParticipant, nil
	}
	if _, busy := s.kicking[userID]; busy {
		s.mu.Unlock()
		return OutcomeNotParticipant, nil
	}
	s.kicking[userID] = struct{}{}
	s.mu.Unlock()

	err := chat.Remove(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kicking, userID)
	if err != nil {
		return OutcomeInternalError, errors.Wrap(err, errors.ErrCodeTransport, "failed to remove chat member")
	}
	s.roster.Remove(userID)
	return OutcomeAccepted, nil
}

// KickAll removes every non-admin member. Failures are collected and do not stop the sweep.
func (s *Session) KickAll(ctx context.Context, chat ChatMembers) (int, Outcome, error) {
	s.mu.Lock()
	ids := s.roster.MemberIDs()
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0, OutcomeRosterEmpty, nil
	}

	kicked := 0
	var errs []error
	for _, id := range ids {
		outcome, err := s.Kick(ctx, chat, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if outcome == OutcomeAccepted {
			kicked++
		}
	}
	return kicked, OutcomeAccepted, stderrors.Join(errs...)
}

// Winner returns the sole remaining member, or in Score mode the top and bottom scorers.
// Ties go to the participant that joined first.
func (s *Session) Winner() (Podium, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winnerLocked()
}

func (s *Session) winnerLocked() (Podium, error) {
	members := s.roster.Members()
	if len(members) == 0 {
		return Podium{}, ErrNoWinner
	}

	if s.mode != ModeScore {
		if len(members) > finishBound {
			return Podium{}, errors.New(errors.ErrCodeNoWinner, "more than one member remains")
		}
		return Podium{Winner: members[0]}, nil
	}

	best, worst := members[0], members[0]
	for _, p := range members[1:] {
		if p.Score > best.Score {
			best = p
		}
		if p.Score < worst.Score {
			worst = p
		}
	}
	return Podium{Winner: best, Last: worst}, nil
}

func (s *Session) markStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *Session) rosterSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Len()
}

func (s *Session) poolName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

func (s *Session) blitzActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeBlitz && s.blitz
}

// activateBlitz switches to the blitz pool once, when exactly two members remain.
func (s *Session) activateBlitz() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeBlitz || s.blitz || s.roster.Len() != blitzThreshold {
		return false
	}
	s.blitz = true
	s.pool = models.PoolBlitz
	s.round = 1
	s.used = nil
	s.currentIndex = -1
	return true
}

// takeResume reports whether this round replays a checkpointed open round, and clears the marker.
func (s *Session) takeResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	resume := s.resuming
	s.resuming = false
	return resume
}

// markPublished records the published question. Answers stay blocked until openAnswers.
func (s *Session) markPublished(q *models.Question, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = q
	s.messageID = messageID
	s.roundOpen = true
}

func (s *Session) openAnswers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerBlocked = false
}

func (s *Session) elapsedTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *Session) addElapsed(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed += d
}

// allAnswered reports whether every remaining member answered this round.
func (s *Session) allAnswered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.roster.MemberIDs() {
		if _, ok := s.answered[id]; !ok {
			return false
		}
	}
	return true
}

// closeAnswers blocks answering and returns the members that did not answer correctly.
// The set is computed under the same lock that shuts the window.
func (s *Session) closeAnswers() (toKick []int64, everyone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answerBlocked = true
	if s.mode == ModeScore {
		return nil, false
	}

	ids := s.roster.MemberIDs()
	for _, id := range ids {
		if _, ok := s.answeredRight[id]; !ok {
			toKick = append(toKick, id)
		}
	}
	return toKick, len(toKick) > 0 && len(toKick) == len(ids)
}

// resetRoundLocked clears the per-round state.
func (s *Session) resetRoundLocked() {
	s.elapsed = 0
	s.answered = make(map[int64]struct{})
	s.answeredRight = make(map[int64]struct{})
	s.roundOpen = false
	s.messageID = 0
}

func (s *Session) finishRound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round++
	s.resetRoundLocked()
}

// suspend keeps an aborted open round so the next start replays its question.
func (s *Session) suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerBlocked = true
	s.resuming = s.roundOpen
}

func (s *Session) markFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.answerBlocked = true
	s.roundOpen = false
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
