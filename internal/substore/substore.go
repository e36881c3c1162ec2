// Package substore is the client's durable subscription registry: a
// sub_id -> filter-list map, so the same REQ set can be reissued after
// a reconnect without the caller having to remember it.
package substore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relaycore/nostrd/internal/filter"
	"github.com/relaycore/nostrd/internal/kvstore"
)

const namespace = "subscriptions"

// Store persists the client's active subscriptions.
type Store struct {
	kv kvstore.Store
}

// New wraps kv as a subscription Store.
func New(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// Add records subID's filter list, overwriting any prior entry under
// the same id.
func (s *Store) Add(ctx context.Context, subID string, filters []filter.Filter) error {
	data, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("substore: marshal filters: %w", err)
	}
	if err := s.kv.Put(ctx, namespace, subID, data); err != nil {
		return fmt.Errorf("substore: add %s: %w", subID, err)
	}
	return nil
}

// Remove drops a subscription. Removing an absent one is not an
// error.
func (s *Store) Remove(ctx context.Context, subID string) error {
	if err := s.kv.Delete(ctx, namespace, subID); err != nil {
		return fmt.Errorf("substore: remove %s: %w", subID, err)
	}
	return nil
}

// All returns every persisted subscription keyed by its id.
func (s *Store) All(ctx context.Context) (map[string][]filter.Filter, error) {
	entries, err := s.kv.Iter(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("substore: list: %w", err)
	}

	out := make(map[string][]filter.Filter, len(entries))
	for _, e := range entries {
		var filters []filter.Filter
		if err := json.Unmarshal(e.Value, &filters); err != nil {
			return nil, fmt.Errorf("substore: decode %s: %w", e.Key, err)
		}
		out[e.Key] = filters
	}
	return out, nil
}

// Resubscriber issues a REQ for a subscription id and filter list —
// satisfied by *pool.Pool's Subscribe method, kept as an interface
// here so substore doesn't import the pool package.
type Resubscriber interface {
	Subscribe(ctx context.Context, subID string, filters []filter.Filter) error
}

// SubscribeToAllStoredRequests reissues every persisted subscription
// against r, for use right after a (re)connect.
func (s *Store) SubscribeToAllStoredRequests(ctx context.Context, r Resubscriber) error {
	all, err := s.All(ctx)
	if err != nil {
		return err
	}
	for subID, filters := range all {
		if err := r.Subscribe(ctx, subID, filters); err != nil {
			return fmt.Errorf("substore: resubscribe %s: %w", subID, err)
		}
	}
	return nil
}
