package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/quiz_bot/internal/quiz"
)

// Callback data of quiz buttons
const (
	prefixAnswer = "quiz:answer:"
	dataScore    = "quiz:score"
	dataClosed   = "quiz:closed"
)

// answerData encodes an option button as quiz:answer:<index>:<1|0>.
func answerData(index int, correct bool) string {
	flag := "0"
	if correct {
		flag = "1"
	}
	return prefixAnswer + strconv.Itoa(index) + ":" + flag
}

// Answer is a click on a quiz button. Closed clicks come from a revealed keyboard and are never
// submitted.
type Answer struct {
	Event  quiz.AnswerEvent
	Closed bool
}

// ParseQuizCallback turns a button click into an answer. ok is false for callbacks that are not
// quiz buttons.
func ParseQuizCallback(query *tgbotapi.CallbackQuery) (Answer, bool) {
	if query == nil || query.From == nil {
		return Answer{}, false
	}
	a := Answer{Event: quiz.AnswerEvent{UserID: query.From.ID, EventID: query.ID}}

	data := query.Data
	switch {
	case data == dataScore:
		a.Event.Probe = true
		return a, true
	case data == dataClosed:
		a.Closed = true
		return a, true
	case strings.HasPrefix(data, prefixAnswer):
		parts := strings.Split(strings.TrimPrefix(data, prefixAnswer), ":")
		if len(parts) != 2 {
			return Answer{}, false
		}
		if _, err := strconv.Atoi(parts[0]); err != nil {
			return Answer{}, false
		}
		a.Event.Correct = parts[1] == "1"
		return a, true
	}
	return Answer{}, false
}
