package messages

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/mroshb/quiz_bot/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Text keys
const (
	StartQuiz      = "start_quiz"
	StartQuizScore = "start_quiz_score"
	StopQuiz       = "stop_quiz"
	Question       = "question"
	AnswerTimeOver = "answer_time_over"
	NobodyKicked   = "nobody_kicked"
	MembersKicked  = "members_kicked"
	EveryoneKicked = "everyone_kicked"
	RightAnswer    = "right_answer"
	BlitzStart     = "blitz_start"
	Winner         = "winner"
	NoWinner       = "no_winner"
	ScoreFinish    = "score_finish"
	RecoveryStart  = "recovery_start"
	RecoveryFinish = "recovery_finish"

	QuestionQueueFinish = "question_queue_finish"
	MalformedPool       = "malformed_pool"
	FaultReport         = "fault_report"

	ChatCollected = "chat_collected"
	KickAllStart  = "kick_all_start"
	KickAllEnd    = "kick_all_end"
	Kicked        = "kicked"

	InternalError = "internal_error"
)

//go:embed default_texts.yaml
var defaultTexts []byte

// Data carries template fields. Unused fields are left zero.
type Data struct {
	Round      int
	Text       string
	Count      int
	Answers    string
	Name       string
	Best       string
	BestScore  int
	Worst      string
	WorstScore int
	Pool       string
	Error      string
	Unit       string
	Trace      string
	Members    int
	Admins     int
	Score      int
	Seconds    int
}

type Catalog struct {
	templates map[string]*template.Template
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := parse(defaultTexts)
	if err != nil {
		panic(fmt.Sprintf("embedded texts are invalid: %v", err))
	}
	return c
}

// Load returns the embedded catalog overridden by the YAML file at path. An empty path yields the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse messages file %s: %w", path, err)
	}
	for k, t := range override.templates {
		c.templates[k] = t
	}
	return c, nil
}

func parse(data []byte) (*Catalog, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(raw))}
	for key, text := range raw {
		t, err := template.New(key).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("text %q: %w", key, err)
		}
		c.templates[key] = t
	}
	return c, nil
}

// Render executes the text for key. Unknown keys render as the key itself.
func (c *Catalog) Render(key string, data Data) string {
	t, ok := c.templates[key]
	if !ok {
		logger.Warn("Unknown message key", "key", key)
		return key
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		logger.Error("Failed to render message", "key", key, "error", err)
		return key
	}
	return buf.String()
}

// Text renders a key without template data.
func (c *Catalog) Text(key string) string {
	return c.Render(key, Data{})
}
