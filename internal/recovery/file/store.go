package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mroshb/quiz_bot/internal/recovery"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/mroshb/quiz_bot/pkg/logger"
)

const (
	checkpointFile = "save_state.json"
	flagPrefix     = "exc_"
	flagSuffix     = ".flag"
)

// Store keeps the checkpoint and crash flags as files in one directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to create dump directory")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp recovery.Checkpoint) error {
	data, err := recovery.EncodeCheckpoint(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(checkpointFile, data)
}

func (s *Store) LoadCheckpoint(ctx context.Context) (*recovery.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, checkpointFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to read checkpoint")
	}
	return recovery.DecodeCheckpoint(data)
}

func (s *Store) RaiseFlag(ctx context.Context, flag recovery.Flag) error {
	data, err := json.Marshal(flag)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to encode flag")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(flagPrefix+flag.ID+flagSuffix, data)
}

func (s *Store) Flags(ctx context.Context) ([]recovery.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFlags()
}

func (s *Store) ClearFlags(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags, err := s.readFlags()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range flags {
		if !f.RaisedAt.Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, flagPrefix+f.ID+flagSuffix)); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrap(err, errors.ErrCodeStorage, "failed to remove flag")
		}
		removed++
	}
	return removed, nil
}

// readFlags must be called with s.mu held.
func (s *Store) readFlags() ([]recovery.Flag, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to list dump directory")
	}

	var flags []recovery.Flag
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, flagPrefix) || !strings.HasSuffix(name, flagSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, flagPrefix), flagSuffix)

		var flag recovery.Flag
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err == nil {
			err = json.Unmarshal(data, &flag)
		}
		if err != nil {
			// An unreadable flag still marks a fault.
			logger.Warn("Unreadable crash flag", "file", name, "error", err)
			flag = recovery.Flag{ID: id, Fault: "unreadable flag"}
			if info, ierr := e.Info(); ierr == nil {
				flag.RaisedAt = info.ModTime()
			}
		}
		flag.ID = id
		flags = append(flags, flag)
	}

	sort.Slice(flags, func(i, j int) bool { return flags[i].RaisedAt.Before(flags[j].RaisedAt) })
	return flags, nil
}

// writeAtomic writes data to a temp file in the same directory, syncs it and renames it over name.
func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to close temp file")
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to replace file")
	}

	if dir, err := os.Open(s.dir); err == nil {
		_ = dir.Sync()
		dir.Close()
	}
	return nil
}
