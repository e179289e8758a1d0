package quiz

// Submit registers one answer event. It is safe for concurrent use and never double counts a
// duplicate delivery. Checks run in order and the first match decides the outcome.
func (s *Session) Submit(ev AnswerEvent) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, known := s.roster.Get(ev.UserID)
	if known && p.IsAdmin {
		return Result{Outcome: OutcomeAdminCannotAnswer}
	}
	if !known {
		return Result{Outcome: OutcomeNotParticipant}
	}

	// A score probe is read-only and ignores the answer window.
	if ev.Probe {
		return Result{Outcome: OutcomeScore, Score: p.Score}
	}

	if s.answerBlocked || s.current == nil {
		return Result{Outcome: OutcomeAnswerBlocked}
	}
	if _, ok := s.answered[ev.UserID]; ok {
		return Result{Outcome: OutcomeAlreadyAnswered, Score: p.Score}
	}

	if s.mode == ModeScore {
		delta := s.current.Score()
		if !ev.Correct {
			delta = -delta
		}
		p.Score += delta
	} else if ev.Correct {
		s.answeredRight[ev.UserID] = struct{}{}
	}
	s.answered[ev.UserID] = struct{}{}

	return Result{Outcome: OutcomeAccepted, Score: p.Score}
}
