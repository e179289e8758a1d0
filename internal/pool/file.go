package pool

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/pkg/errors"
)

// FileSource reads question pools from <dir>/<pool>.json. The file modification time is the
// version marker, so editing a file is enough to unblock a waiting quiz.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load returns every question of the pool in file order. An unreadable or invalid file yields
// MALFORMED_POOL, a missing one NOT_FOUND.
func (s *FileSource) Load(ctx context.Context, name string) ([]models.Question, error) {
	data, err := os.ReadFile(s.Path(name))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("pool %s not found", name))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedPool, fmt.Sprintf("failed to read pool %s", name))
	}
	return Decode(name, data)
}

func (s *FileSource) Version(ctx context.Context, name string) (string, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to stat pool")
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10) + ":" + strconv.FormatInt(info.Size(), 10), nil
}

// Save writes a pool file, replacing any previous content.
func (s *FileSource) Save(ctx context.Context, name string, questions []models.Question) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create data dir")
	}
	data, err := Encode(questions)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(name), data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to write pool")
	}
	return nil
}

// Decode parses a JSON array of questions and validates each of them.
func Decode(name string, data []byte) ([]models.Question, error) {
	var questions []models.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedPool, fmt.Sprintf("pool %s is not a question list", name))
	}
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMalformedPool, fmt.Sprintf("pool %s, question %d", name, i))
		}
		questions[i].Pool = name
		questions[i].Position = i
	}
	return questions, nil
}

func Encode(questions []models.Question) ([]byte, error) {
	data, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode pool")
	}
	return data, nil
}
