package substore

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/relaycore/nostrd/internal/filter"
	"github.com/relaycore/nostrd/internal/kvstore"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string]map[string][]byte)} }

func (m *memStore) Put(_ context.Context, ns, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[ns] == nil {
		m.data[ns] = make(map[string][]byte)
	}
	m.data[ns][key] = value
	return nil
}

func (m *memStore) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[ns][key]
	return v, ok, nil
}

func (m *memStore) Delete(_ context.Context, ns, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[ns], key)
	return nil
}

func (m *memStore) Iter(_ context.Context, ns string) ([]kvstore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []kvstore.Entry
	for k, v := range m.data[ns] {
		out = append(out, kvstore.Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) Close() error { return nil }

func TestStore_AddAndAll(t *testing.T) {
	s := New(newMemStore())
	ctx := context.Background()
	filters := []filter.Filter{{Kinds: []int{1}}}

	if err := s.Add(ctx, "sub1", filters); err != nil {
		t.Fatalf("Add: %v", err)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || len(all["sub1"]) != 1 {
		t.Fatalf("All() = %+v, want one subscription with one filter", all)
	}
}

func TestStore_Remove(t *testing.T) {
	s := New(newMemStore())
	ctx := context.Background()

	if err := s.Add(ctx, "sub1", []filter.Filter{{}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove(ctx, "sub1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("All() = %+v, want empty after Remove", all)
	}

	if err := s.Remove(ctx, "never-added"); err != nil {
		t.Errorf("Remove of absent subscription returned error: %v", err)
	}
}

type fakeResubscriber struct {
	calls map[string][]filter.Filter
}

func (f *fakeResubscriber) Subscribe(_ context.Context, subID string, filters []filter.Filter) error {
	if f.calls == nil {
		f.calls = make(map[string][]filter.Filter)
	}
	f.calls[subID] = filters
	return nil
}

func TestSubscribeToAllStoredRequests_ReissuesEvery(t *testing.T) {
	s := New(newMemStore())
	ctx := context.Background()
	if err := s.Add(ctx, "sub1", []filter.Filter{{Kinds: []int{1}}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, "sub2", []filter.Filter{{Kinds: []int{2}}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	r := &fakeResubscriber{}
	if err := s.SubscribeToAllStoredRequests(ctx, r); err != nil {
		t.Fatalf("SubscribeToAllStoredRequests: %v", err)
	}
	if len(r.calls) != 2 {
		t.Errorf("len(r.calls) = %d, want 2", len(r.calls))
	}
}
