package models

// Participant is a chat user known to the quiz. Admins never answer and are never eliminated.
type Participant struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
	Score   int    `json:"score"`
}
