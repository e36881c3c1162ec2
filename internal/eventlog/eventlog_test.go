package eventlog

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/kvstore"
)

// memStore is a minimal in-process kvstore.Store fake used only to
// exercise eventlog's sequencing logic in isolation from SQLite.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string][]byte)}
}

func (m *memStore) Put(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[namespace] == nil {
		m.data[namespace] = make(map[string][]byte)
	}
	m.data[namespace][key] = value
	return nil
}

func (m *memStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[namespace][key]
	return v, ok, nil
}

func (m *memStore) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[namespace], key)
	return nil
}

func (m *memStore) Iter(_ context.Context, namespace string) ([]kvstore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []kvstore.Entry
	for k, v := range m.data[namespace] {
		out = append(out, kvstore.Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) Close() error { return nil }

func TestLog_AppendScanAllPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	log, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 5; i++ {
		ev := &event.Event{ID: string(rune('a' + i)), Kind: 1}
		if err := log.Append(ctx, ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := log.ScanAll(ctx)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len(all) = %d, want 5", len(all))
	}
	for i, ev := range all {
		want := string(rune('a' + i))
		if ev.ID != want {
			t.Errorf("all[%d].ID = %q, want %q (append order)", i, ev.ID, want)
		}
	}
}

func TestLog_OpenResumesSequenceCounter(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	log1, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := log1.Append(ctx, &event.Event{ID: "x"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	log2, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := log2.Append(ctx, &event.Event{ID: "y"}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}

	all, err := log2.ScanAll(ctx)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(all) = %d, want 4 (3 before reopen + 1 after)", len(all))
	}
	if all[3].ID != "y" {
		t.Errorf("all[3].ID = %q, want y (appended last, after resume)", all[3].ID)
	}
}

func TestLog_Len(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	log, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	n, err := log.Len(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Len() = (%d, %v), want (0, nil) on an empty log", n, err)
	}
	if err := log.Append(ctx, &event.Event{ID: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	n, err = log.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Len() = (%d, %v), want (1, nil)", n, err)
	}
}
