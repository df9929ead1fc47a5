package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/journal/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if EARSHOT_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("EARSHOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EARSHOT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := journal.Entry{
		ID:            uuid.New(),
		StartedAt:     base,
		Profile:       "medium",
		State:         "stopped",
		Text:          "Open the pod bay doors.",
		Raw:           "open the pod bay doors",
		AudioDuration: 2500 * time.Millisecond,
		Latency:       300 * time.Millisecond,
	}
	second := journal.Entry{
		ID:        uuid.New(),
		StartedAt: base.Add(time.Minute),
		Profile:   "medium",
		State:     "timed_out",
		TimedOut:  true,
	}
	for _, e := range []journal.Entry{first, second, first} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (duplicate ID ignored)", len(got))
	}
	if got[0].ID != second.ID || !got[0].TimedOut {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Text != first.Text || got[1].AudioDuration != first.AudioDuration || got[1].Latency != first.Latency {
		t.Errorf("oldest = %+v", got[1])
	}
	if !got[1].StartedAt.Equal(first.StartedAt) {
		t.Errorf("started_at = %s, want %s", got[1].StartedAt, first.StartedAt)
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("Recent(1) = %d entries, err %v", len(limited), err)
	}
}

func TestStore_Search(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i, text := range []string{"Deploy the cluster", "Feed the cat", "Restart the cluster now"} {
		e := journal.Entry{ID: uuid.New(), StartedAt: time.Now().Add(time.Duration(i) * time.Second), State: "stopped", Text: text}
		if err := store.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.Search(ctx, "cluster", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].Text != "Restart the cluster now" {
		t.Fatalf("search results = %+v", got)
	}
}

func TestStore_ByKeyword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tagged := journal.Entry{ID: uuid.New(), StartedAt: time.Now(), State: "stopped", Text: "I deployed Kubernetes today", Keywords: []string{"deployed", "kubernetes", "today"}}
	untagged := journal.Entry{ID: uuid.New(), StartedAt: time.Now(), State: "no_speech"}
	for _, e := range []journal.Entry{tagged, untagged} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ByKeyword(ctx, "Kubernetes", 10)
	if err != nil {
		t.Fatalf("ByKeyword: %v", err)
	}
	if len(got) != 1 || got[0].ID != tagged.ID || len(got[0].Keywords) != 3 {
		t.Fatalf("results = %+v", got)
	}

	recent, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range recent {
		if e.ID == untagged.ID && (e.Keywords == nil || len(e.Keywords) != 0) {
			t.Errorf("untagged keywords = %#v, want empty", e.Keywords)
		}
	}
}

func TestStore_Ping(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNewStore_BadDSN(t *testing.T) {
	if _, err := postgres.NewStore(context.Background(), "://not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

// ---- helpers ----

// newTestStore creates a Store on a freshly dropped schema and closes it when
// the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS utterances CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}
