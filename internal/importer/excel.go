package importer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/security"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// Column headers recognised in the first row of every sheet. Any header starting with "option"
// is an answer option, in column order.
const (
	colQuestion     = "question"
	colCorrect      = "correct"
	colPoints       = "points"
	colLayout       = "layout"
	colAttachments  = "attachments"
	colOptionPrefix = "option"
)

// RowError describes a spreadsheet row that was skipped.
type RowError struct {
	Sheet string
	Row   int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Sheet, e.Row, e.Err)
}

type Result struct {
	Questions []models.Question
	Skipped   []RowError
}

type columns struct {
	question    int
	correct     int
	points      int
	layout      int
	attachments int
	options     []int
}

// ReadWorkbook converts every sheet of an xlsx file into questions, in sheet and row order.
func ReadWorkbook(path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to open workbook")
	}
	defer f.Close()

	res := &Result{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, fmt.Sprintf("failed to read sheet %s", sheet))
		}
		if len(rows) == 0 {
			continue
		}

		cols, err := parseHeader(rows[0])
		if err != nil {
			logger.Warn("Skipping sheet", "sheet", sheet, "error", err)
			res.Skipped = append(res.Skipped, RowError{Sheet: sheet, Row: 1, Err: err})
			continue
		}

		for i, row := range rows[1:] {
			if isBlank(row) {
				continue
			}
			q, err := parseRow(row, cols)
			if err != nil {
				res.Skipped = append(res.Skipped, RowError{Sheet: sheet, Row: i + 2, Err: err})
				continue
			}
			res.Questions = append(res.Questions, *q)
		}
		logger.Info("Sheet imported", "sheet", sheet, "rows", len(rows)-1)
	}
	return res, nil
}

func parseHeader(header []string) (columns, error) {
	cols := columns{question: -1, correct: -1, points: -1, layout: -1, attachments: -1}
	for i, h := range header {
		switch name := strings.ToLower(strings.TrimSpace(h)); {
		case name == colQuestion:
			cols.question = i
		case name == colCorrect:
			cols.correct = i
		case name == colPoints:
			cols.points = i
		case name == colLayout:
			cols.layout = i
		case name == colAttachments:
			cols.attachments = i
		case strings.HasPrefix(name, colOptionPrefix):
			cols.options = append(cols.options, i)
		}
	}
	if cols.question < 0 || cols.correct < 0 || len(cols.options) == 0 {
		return cols, fmt.Errorf("header needs %q, %q and at least one option column", colQuestion, colCorrect)
	}
	return cols, nil
}

func parseRow(row []string, cols columns) (*models.Question, error) {
	q := &models.Question{
		Text:   security.SanitizeText(cell(row, cols.question)),
		Layout: strings.ToLower(cell(row, cols.layout)),
	}

	for _, c := range cols.options {
		if text := security.SanitizeText(cell(row, c)); text != "" {
			q.Options = append(q.Options, models.Option{Text: text})
		}
	}

	correct, err := parseCorrect(cell(row, cols.correct))
	if err != nil {
		return nil, err
	}
	for _, n := range correct {
		if n < 1 || n > len(q.Options) {
			return nil, fmt.Errorf("correct option %d out of range 1..%d", n, len(q.Options))
		}
		q.Options[n-1].Correct = true
	}

	if p := cell(row, cols.points); p != "" {
		points, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid points %q", p)
		}
		q.Points = points
	}

	if a := cell(row, cols.attachments); a != "" {
		for _, ref := range strings.Split(a, ";") {
			if ref = strings.TrimSpace(ref); ref != "" {
				q.Attachments = append(q.Attachments, ref)
			}
		}
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// parseCorrect extracts the 1-based option numbers from cells like "2", "1, 3" or "Option 2".
// Arabic-Indic and Persian digits are accepted.
func parseCorrect(s string) ([]int, error) {
	var out []int
	n, inNumber := 0, false
	for _, r := range s + " " {
		if d, ok := digitValue(r); ok {
			n = n*10 + d
			inNumber = true
			continue
		}
		if inNumber {
			out = append(out, n)
			n, inNumber = 0, false
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no correct option number in %q", s)
	}
	return out, nil
}

func digitValue(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= '٠' && r <= '٩':
		return int(r - '٠'), true
	case r >= '۰' && r <= '۹':
		return int(r - '۰'), true
	}
	return 0, false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.IndexFunc(c, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0 {
			return false
		}
	}
	return true
}
