package journal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestMemory_RecordsInOrder(t *testing.T) {
	m := &Memory{}
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if err := m.Record(context.Background(), Entry{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	got := m.Entries()
	if len(got) != len(ids) {
		t.Fatalf("len = %d, want %d", len(got), len(ids))
	}
	for i, e := range got {
		if e.ID != ids[i] {
			t.Errorf("entry %d = %s, want %s", i, e.ID, ids[i])
		}
	}

	got[0].Text = "mutated"
	if m.Entries()[0].Text != "" {
		t.Error("Entries must return a copy")
	}
}

func TestMemory_Err(t *testing.T) {
	want := errors.New("disk full")
	m := &Memory{Err: want}
	if err := m.Record(context.Background(), Entry{}); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if m.Len() != 0 {
		t.Fatal("entry stored despite error")
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m := &Memory{}
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Record(context.Background(), Entry{ID: uuid.New()})
		}()
	}
	wg.Wait()
	if m.Len() != 50 {
		t.Fatalf("len = %d, want 50", m.Len())
	}
}
