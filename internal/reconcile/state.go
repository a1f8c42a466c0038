package reconcile

import (
	"context"
	"sync"

	"mytodos/internal/feed"
	"mytodos/internal/models"
	"mytodos/internal/order"
)

// State holds the local todo list together with a version that advances
// on every change. Writers that computed a new list from an older
// version lose their CompareAndSwap instead of overwriting newer state.
type State struct {
	mu      sync.RWMutex
	items   []models.Item
	version uint64
	changes *feed.Feed[[]models.Item]
}

// NewState returns an empty list at version 0.
func NewState() *State {
	return &State{
		items:   []models.Item{},
		changes: feed.New[[]models.Item](),
	}
}

// Load returns a copy of the list and the version it belongs to.
func (s *State) Load() ([]models.Item, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return order.Clone(s.items), s.version
}

// Version returns the current version.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// CompareAndSwap installs items if the state is still at version. It
// returns the version after the call and whether the swap happened.
func (s *State) CompareAndSwap(version uint64, items []models.Item) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version != version {
		return s.version, false
	}
	return s.storeLocked(items), true
}

// Replace installs items unconditionally.
func (s *State) Replace(items []models.Item) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(items)
}

// Watch streams the list: the current value first, then every change.
func (s *State) Watch(ctx context.Context) (<-chan []models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes.Subscribe(ctx, order.Clone(s.items))
}

// Close ends every Watch stream.
func (s *State) Close() {
	s.changes.Close()
}

func (s *State) storeLocked(items []models.Item) uint64 {
	s.items = order.Clone(items)
	s.version++
	s.changes.Publish(order.Clone(s.items))
	return s.version
}
