package quiz

// Outcome is the result of an answer or a command. Rejections are normal outcomes, not errors.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeScore
	OutcomeAdminCannotAnswer
	OutcomeAnswerBlocked
	OutcomeAlreadyAnswered
	OutcomeNotAuthorized
	OutcomeAlreadyRunning
	OutcomeAlreadyStopped
	OutcomeNobodyToKick
	OutcomeCannotKickAdmin
	OutcomeRosterEmpty
	OutcomeRateLimited
	OutcomeNotParticipant
	OutcomeQuizFinished
	OutcomeInternalError
)

var outcomeKeys = map[Outcome]string{
	OutcomeAccepted:          "answer_accepted",
	OutcomeScore:             "score_probe",
	OutcomeAdminCannotAnswer: "admin_cannot_answer",
	OutcomeAnswerBlocked:     "answer_blocked",
	OutcomeAlreadyAnswered:   "already_answered",
	OutcomeNotAuthorized:     "not_authorized",
	OutcomeAlreadyRunning:    "already_running",
	OutcomeAlreadyStopped:    "already_stopped",
	OutcomeNobodyToKick:      "nobody_to_kick",
	OutcomeCannotKickAdmin:   "cannot_kick_admin",
	OutcomeRosterEmpty:       "roster_empty",
	OutcomeRateLimited:       "rate_limited",
	OutcomeNotParticipant:    "not_participant",
	OutcomeQuizFinished:      "quiz_finished",
	OutcomeInternalError:     "internal_error",
}

// TextKey is the message catalog key of the reply for this outcome.
func (o Outcome) TextKey() string {
	if key, ok := outcomeKeys[o]; ok {
		return key
	}
	return "internal_error"
}

func (o Outcome) String() string {
	return o.TextKey()
}

// Result is what Submit reports back to the answering user.
type Result struct {
	Outcome Outcome
	// Score is the participant's score after the answer (Score mode only).
	Score int
}
