// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"mytodos/internal/models"
	"mytodos/internal/store"
)

// ErrInjected is a generic failure tests can hand to the fake.
var ErrInjected = errors.New("injected failure")

// FakeStore is an in-memory implementation of store.Store for testing.
// It does not implement store.BatchUpdater, so reorders against it fan
// out into one Update per item.
type FakeStore struct {
	mu     sync.Mutex
	items  []models.RawItem
	nextID int
	subs   []chan store.Snapshot

	// Error injection for testing
	CreateErr error
	DeleteErr error
	UpdateErr map[string]error // id -> error
	ListErr   error

	// BeforeWrite, if set, runs before every write with the operation
	// name and target id. It runs without the fake's lock held.
	BeforeWrite func(op, id string)

	// AutoEmit publishes a snapshot to subscribers after each write.
	AutoEmit bool

	creates []store.CreateInput
	updates []store.UpdateInput
	deletes []string
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{UpdateErr: make(map[string]error)}
}

// Seed appends a todo with the given id and optional order.
func (f *FakeStore) Seed(id, content string, order *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, models.RawItem{ID: id, Content: content, Order: order})
}

// SetUpdateErr makes Update fail for id.
func (f *FakeStore) SetUpdateErr(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateErr[id] = err
}

// Create implements store.Store.
func (f *FakeStore) Create(ctx context.Context, in store.CreateInput) (models.Item, error) {
	f.beforeWrite("create", "")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates = append(f.creates, in)
	if f.CreateErr != nil {
		return models.Item{}, f.CreateErr
	}

	f.nextID++
	raw := models.RawItem{ID: "fake-" + strconv.Itoa(f.nextID), Content: in.Content}
	if in.Order != nil {
		raw.Order = models.IntPtr(*in.Order)
	}
	f.items = append(f.items, raw)
	f.emitLocked()

	return toItem(raw), nil
}

// Update implements store.Store.
func (f *FakeStore) Update(ctx context.Context, in store.UpdateInput) (models.Item, error) {
	f.beforeWrite("update", in.ID)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates = append(f.updates, in)
	if err := f.UpdateErr[in.ID]; err != nil {
		return models.Item{}, err
	}

	for i := range f.items {
		if f.items[i].ID != in.ID {
			continue
		}
		if in.Order != nil {
			f.items[i].Order = models.IntPtr(*in.Order)
		}
		f.emitLocked()
		return toItem(f.items[i]), nil
	}
	return models.Item{}, fmt.Errorf("%w: %s", store.ErrNotFound, in.ID)
}

// Delete implements store.Store.
func (f *FakeStore) Delete(ctx context.Context, id string) error {
	f.beforeWrite("delete", id)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, id)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}

	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			f.emitLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

// List implements store.Store.
func (f *FakeStore) List(ctx context.Context) ([]models.RawItem, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked().Items, nil
}

// SubscribeAll implements store.Store. The channel is closed when ctx
// is done or Close is called.
func (f *FakeStore) SubscribeAll(ctx context.Context) (<-chan store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan store.Snapshot, 16)
	ch <- f.snapshotLocked()
	f.subs = append(f.subs, ch)

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, sub := range f.subs {
			if sub == ch {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch, nil
}

// Emit publishes the current item set to every subscriber.
func (f *FakeStore) Emit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishLocked()
}

// Close implements store.Store.
func (f *FakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		close(sub)
	}
	f.subs = nil
	return nil
}

// Creates returns the create calls received so far.
func (f *FakeStore) Creates() []store.CreateInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.CreateInput(nil), f.creates...)
}

// Updates returns the update calls received so far.
func (f *FakeStore) Updates() []store.UpdateInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.UpdateInput(nil), f.updates...)
}

// Deletes returns the ids of delete calls received so far.
func (f *FakeStore) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

// Calls returns the total number of write calls received.
func (f *FakeStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates) + len(f.updates) + len(f.deletes)
}

func (f *FakeStore) beforeWrite(op, id string) {
	if f.BeforeWrite != nil {
		f.BeforeWrite(op, id)
	}
}

func (f *FakeStore) emitLocked() {
	if f.AutoEmit {
		f.publishLocked()
	}
}

func (f *FakeStore) publishLocked() {
	snap := f.snapshotLocked()
	for _, sub := range f.subs {
		select {
		case sub <- snap:
		default:
		}
	}
}

func (f *FakeStore) snapshotLocked() store.Snapshot {
	items := make([]models.RawItem, len(f.items))
	for i, item := range f.items {
		items[i] = item
		if item.Order != nil {
			items[i].Order = models.IntPtr(*item.Order)
		}
	}
	return store.Snapshot{Items: items}
}

func toItem(raw models.RawItem) models.Item {
	item := models.Item{ID: raw.ID, Content: raw.Content}
	if raw.Order != nil {
		item.Order = *raw.Order
	}
	return item
}
