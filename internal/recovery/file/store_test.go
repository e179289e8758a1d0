package file

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mroshb/quiz_bot/internal/models"
	"github.com/mroshb/quiz_bot/internal/recovery"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "dump")
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store, dir
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	cp, err := store.LoadCheckpoint(ctx)
	if err != nil || cp != nil {
		t.Fatalf("empty store LoadCheckpoint() = %v, %v", cp, err)
	}

	want := recovery.Checkpoint{
		Mode:          "score",
		Members:       []models.Participant{{ID: 1, Name: "Ann", Score: -2}},
		Admins:        []models.Participant{{ID: 9, Name: "Boss", IsAdmin: true}},
		Pool:          models.PoolMain,
		Used:          []int{0, 4, 2},
		CurrentIndex:  2,
		Round:         3,
		Elapsed:       40 * time.Second,
		Seed:          99,
		RoundOpen:     true,
		Answered:      []int64{1},
		AnsweredRight: []int64{1},
		MessageID:     77,
		SavedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := store.SaveCheckpoint(ctx, want); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	want.Round = 4
	if err := store.SaveCheckpoint(ctx, want); err != nil {
		t.Fatalf("second SaveCheckpoint() error = %v", err)
	}

	got, err := store.LoadCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if !got.SavedAt.Equal(want.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, want.SavedAt)
	}
	got.SavedAt, want.SavedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("LoadCheckpoint() = %+v, want %+v", *got, want)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStore_CorruptCheckpoint(t *testing.T) {
	store, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, checkpointFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.LoadCheckpoint(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestStore_Flags(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	raised := []recovery.Flag{
		{ID: "late", Fault: "boom", RaisedAt: base.Add(2 * time.Minute)},
		{ID: "early", Fault: "boom", RaisedAt: base},
		{ID: "middle", Fault: "boom", RaisedAt: base.Add(time.Minute)},
	}
	for _, flag := range raised {
		if err := store.RaiseFlag(ctx, flag); err != nil {
			t.Fatalf("RaiseFlag(%s) error = %v", flag.ID, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	flags, err := store.Flags(ctx)
	if err != nil {
		t.Fatalf("Flags() error = %v", err)
	}
	var ids []string
	for _, f := range flags {
		ids = append(ids, f.ID)
	}
	if !reflect.DeepEqual(ids, []string{"early", "middle", "late"}) {
		t.Fatalf("Flags() order = %v", ids)
	}

	removed, err := store.ClearFlags(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("ClearFlags() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("ClearFlags() removed %d, want 1 (strictly older only)", removed)
	}

	flags, _ = store.Flags(ctx)
	if len(flags) != 2 || flags[0].ID != "middle" {
		t.Errorf("remaining flags = %+v", flags)
	}
}

func TestStore_UnreadableFlagCounts(t *testing.T) {
	store, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, "exc_legacy_at_1.flag"), []byte("plain text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	flags, err := store.Flags(context.Background())
	if err != nil {
		t.Fatalf("Flags() error = %v", err)
	}
	if len(flags) != 1 || flags[0].ID != "legacy_at_1" {
		t.Fatalf("Flags() = %+v", flags)
	}

	cp := recovery.Checkpoint{Round: 2}
	if err := store.SaveCheckpoint(context.Background(), cp); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}
	loaded, err := recovery.Load(context.Background(), store, recovery.Policy{})
	if err != nil || loaded == nil {
		t.Fatalf("Load() with unreadable flag = %v, %v", loaded, err)
	}
}
