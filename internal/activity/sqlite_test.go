package activity_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tripwire/logviewer/internal/activity"
)

func openMemStore(t *testing.T) *activity.SQLiteStore {
	t.Helper()
	s, err := activity.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(file string, started time.Time) activity.Record {
	return activity.Record{
		SessionID:  uuid.NewString(),
		File:       file,
		Transport:  "sse",
		RemoteAddr: "10.0.0.7:51234",
		StartedAt:  started,
	}
}

func TestSQLiteStore_StartFinishRecent(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := record("app.log", base)
	second := record("db.log", base.Add(time.Minute))
	for _, r := range []activity.Record{first, second} {
		if err := s.Start(ctx, r); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	ended := base.Add(2 * time.Minute)
	if err := s.Finish(ctx, activity.Outcome{
		SessionID: first.SessionID,
		EndedAt:   ended,
		Reason:    "deleted",
		Events:    3,
		Bytes:     150,
	}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].SessionID != second.SessionID {
		t.Errorf("newest first: got %s, want %s", got[0].File, second.File)
	}
	if got[0].EndedAt != nil {
		t.Errorf("running session has EndedAt %v", got[0].EndedAt)
	}

	done := got[1]
	if done.EndedAt == nil || !done.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", done.EndedAt, ended)
	}
	if done.Reason != "deleted" || done.Events != 3 || done.Bytes != 150 {
		t.Errorf("finished record = %+v", done)
	}
	if !done.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", done.StartedAt, base)
	}
	if done.Transport != "sse" || done.RemoteAddr != "10.0.0.7:51234" {
		t.Errorf("transport fields = %+v", done)
	}
}

func TestSQLiteStore_RecentLimit(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := s.Start(ctx, record("app.log", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}

	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent(0): %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Recent(0) len = %d, want all 5 under the default cap", len(all))
	}
}

func TestSQLiteStore_EmptyRecentIsNonNil(t *testing.T) {
	got, err := openMemStore(t).Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if got == nil {
		t.Error("Recent should return an empty slice, not nil")
	}
}

func TestSQLiteStore_FinishUnknownIsNoop(t *testing.T) {
	err := openMemStore(t).Finish(context.Background(), activity.Outcome{
		SessionID: "missing",
		EndedAt:   time.Now(),
	})
	if err != nil {
		t.Errorf("Finish unknown session: %v", err)
	}
}

func TestSQLiteStore_DuplicateStartFails(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)
	r := record("app.log", time.Now())
	if err := s.Start(ctx, r); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx, r); err == nil {
		t.Error("second Start with the same session ID should fail")
	}
}

func TestSQLiteStore_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	s := openMemStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := record("app.log", time.Now())
			if err := s.Start(ctx, r); err != nil {
				t.Errorf("Start: %v", err)
				return
			}
			if err := s.Finish(ctx, activity.Outcome{SessionID: r.SessionID, EndedAt: time.Now(), Reason: "cancelled"}); err != nil {
				t.Errorf("Finish: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("len = %d, want 20", len(got))
	}
}

func TestSQLiteStore_FilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "activity.db")

	s, err := activity.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	r := record("app.log", time.Now())
	if err := s.Start(ctx, r); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	reopened, err := activity.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != r.SessionID {
		t.Errorf("after reopen got %+v", got)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := activity.Open(ctx, "none", "")
	if err != nil {
		t.Fatalf("Open(none): %v", err)
	}
	if _, ok := s.(activity.Nop); !ok {
		t.Errorf("Open(none) = %T, want Nop", s)
	}
	recs, _ := s.Recent(ctx, 5)
	if recs == nil || len(recs) != 0 {
		t.Errorf("Nop.Recent = %#v", recs)
	}

	s, err = activity.Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	if _, ok := s.(*activity.SQLiteStore); !ok {
		t.Errorf("Open(sqlite) = %T", s)
	}
	_ = s.Close()

	if _, err := activity.Open(ctx, "mysql", "x"); err == nil {
		t.Error("Open(mysql) should fail")
	}
}

var (
	_ activity.Store = (*activity.SQLiteStore)(nil)
	_ activity.Store = (*activity.PostgresStore)(nil)
	_ activity.Store = activity.Nop{}
)
