package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strconv"
	"time"

	"github.com/mroshb/quiz_bot/internal/recovery"
	"github.com/mroshb/quiz_bot/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store keeps the checkpoint in one string key and crash flags in a hash indexed by a sorted set.
//
//	SET  {prefix}checkpoint   <json>
//	HSET {prefix}flags        {id} <json>
//	ZADD {prefix}flags:index  {raisedAt unix micro} {id}
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "quizbot:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp recovery.Checkpoint) error {
	data, err := recovery.EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.checkpointKey(), data, 0).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to save checkpoint")
	}
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context) (*recovery.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey()).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to load checkpoint")
	}
	return recovery.DecodeCheckpoint(data)
}

func (s *Store) RaiseFlag(ctx context.Context, flag recovery.Flag) error {
	data, err := json.Marshal(flag)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to encode flag")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.flagsKey(), flag.ID, data)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(flag.RaisedAt.UnixMicro()), Member: flag.ID})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to raise flag")
	}
	return nil
}

func (s *Store) Flags(ctx context.Context) ([]recovery.Flag, error) {
	raw, err := s.client.HGetAll(ctx, s.flagsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to list flags")
	}

	flags := make([]recovery.Flag, 0, len(raw))
	for id, data := range raw {
		var flag recovery.Flag
		if err := json.Unmarshal([]byte(data), &flag); err != nil {
			flag = recovery.Flag{Fault: "unreadable flag"}
		}
		flag.ID = id
		flags = append(flags, flag)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].RaisedAt.Before(flags[j].RaisedAt) })
	return flags, nil
}

func (s *Store) ClearFlags(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorage, "failed to select flags")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.flagsKey(), ids...)
		pipe.ZRem(ctx, s.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorage, "failed to clear flags")
	}
	return len(ids), nil
}

func (s *Store) checkpointKey() string {
	return s.prefix + "checkpoint"
}

func (s *Store) flagsKey() string {
	return s.prefix + "flags"
}

func (s *Store) indexKey() string {
	return s.prefix + "flags:index"
}
