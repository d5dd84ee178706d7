package storage

import (
	"context"
	"slices"
	"sync"
)

// index is the in-memory subscriber set shared by the memory and file drivers.
type index map[Category]map[int64]struct{}

func (ix index) add(c Category, id int64) bool {
	set := ix[c]
	if set == nil {
		set = map[int64]struct{}{}
		ix[c] = set
	}
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}

func (ix index) remove(c Category, id int64) bool {
	set := ix[c]
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	return true
}

func (ix index) purge(id int64) bool {
	found := false
	for _, set := range ix {
		if _, ok := set[id]; ok {
			delete(set, id)
			found = true
		}
	}
	return found
}

func (ix index) list(c Category) []int64 {
	out := make([]int64, 0, len(ix[c]))
	for id := range ix[c] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (ix index) of(id int64) []Category {
	var out []Category
	for _, c := range Categories {
		if _, ok := ix[c][id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (ix index) counts() map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = len(ix[c])
	}
	return out
}

type memStore struct {
	mu sync.RWMutex
	ix index
}

// NewMemory returns a process-local Store.
func NewMemory() Store { return &memStore{ix: index{}} }

func (s *memStore) AddSubscriber(_ context.Context, c Category, id int64) (bool, error) {
	if !c.Valid() {
		return false, ErrUnknownCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.add(c, id), nil
}

func (s *memStore) RemoveSubscription(_ context.Context, c Category, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.remove(c, id), nil
}

func (s *memStore) RemoveSubscriber(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ix.purge(id)
	return nil
}

func (s *memStore) ListSubscribers(_ context.Context, c Category) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.list(c), nil
}

func (s *memStore) Subscriptions(_ context.Context, id int64) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.of(id), nil
}

func (s *memStore) Counts(context.Context) (map[Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.counts(), nil
}

func (s *memStore) Close() error { return nil }
