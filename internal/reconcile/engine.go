// Package reconcile keeps the local todo list in step with the store.
//
// User intents are applied to the local list immediately, persisted to
// the store afterwards, and undone locally when persistence fails. Every
// snapshot delivered by the store's live query replaces the local list.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"mytodos/internal/models"
	"mytodos/internal/order"
	"mytodos/internal/store"
)

// ErrConflict is joined to a remote failure when the list changed while
// the operation was in flight, so the pre-operation list could not be
// restored. The engine re-syncs from the store in that case.
var ErrConflict = errors.New("todo list changed during operation")

// ErrSubscriptionClosed is returned by Run when the store ends the live
// query on its own.
var ErrSubscriptionClosed = errors.New("todo subscription closed")

// Config holds the dependencies for New.
type Config struct {
	Store  store.Store
	Logger *slog.Logger

	// MaxInFlight bounds concurrent Update calls during a reorder fan-out.
	// Zero means no limit.
	MaxInFlight int
}

// Engine applies create, delete and reorder intents against the store.
// It is safe for concurrent use.
type Engine struct {
	store       store.Store
	state       *State
	logger      *slog.Logger
	maxInFlight int
}

// New creates an Engine with an empty list. Call Run or Refresh to load it.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       cfg.Store,
		state:       NewState(),
		logger:      logger,
		maxInFlight: cfg.MaxInFlight,
	}
}

// Items returns a copy of the current list in display order.
func (e *Engine) Items() []models.Item {
	items, _ := e.state.Load()
	return items
}

// Version returns the version of the current list.
func (e *Engine) Version() uint64 {
	return e.state.Version()
}

// Snapshot returns a copy of the current list with its version.
func (e *Engine) Snapshot() ([]models.Item, uint64) {
	return e.state.Load()
}

// Watch streams the list: the current value first, then every change.
func (e *Engine) Watch(ctx context.Context) (<-chan []models.Item, error) {
	return e.state.Watch(ctx)
}

// Close ends every Watch stream. It does not close the store.
func (e *Engine) Close() {
	e.state.Close()
}

// Run applies every snapshot of the store's live query to the local list
// until ctx is done. Snapshots win over optimistic changes still in flight.
func (e *Engine) Run(ctx context.Context) error {
	snapshots, err := e.store.SubscribeAll(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to todos: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionClosed
			}
			version := e.state.Replace(order.Normalize(snap.Items))
			e.logger.Debug("applied todo snapshot",
				slog.Int("count", len(snap.Items)),
				slog.Uint64("version", version))
		}
	}
}

// Refresh reloads the list from the store once.
func (e *Engine) Refresh(ctx context.Context) error {
	raw, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh todos: %w", err)
	}
	e.state.Replace(order.Normalize(raw))
	return nil
}

// Create persists a new todo after every existing one. The local list is
// not touched; the todo shows up with the next store snapshot. Empty
// content is logged and ignored.
func (e *Engine) Create(ctx context.Context, content string) error {
	trimmed, err := models.ValidateContent(content)
	if err != nil {
		e.logger.Warn("todo content cannot be empty")
		return nil
	}

	next := order.Next(e.Items())
	item, err := e.store.Create(ctx, store.CreateInput{Content: trimmed, Order: &next})
	if err != nil {
		e.logger.Error("failed to create todo", slog.Any("err", err))
		return fmt.Errorf("create todo: %w", err)
	}

	e.logger.Debug("todo created", slog.String("id", item.ID), slog.Int("order", item.Order))
	return nil
}

// Delete removes the todo locally, then from the store. The local list is
// restored if the store rejects the delete.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		e.logger.Warn("todo id is required for deletion")
		return nil
	}

	before, _, installed, _ := e.apply(func(items []models.Item) ([]models.Item, error) {
		return order.Remove(items, id), nil
	})

	if err := e.store.Delete(ctx, id); err != nil {
		e.logger.Error("failed to delete todo", slog.String("id", id), slog.Any("err", err))
		return e.rollback(ctx, "delete todo", before, installed, err)
	}

	e.logger.Debug("todo deleted", slog.String("id", id))
	return nil
}

// Reorder moves activeID to the position currently held by overID and
// renumbers the whole list densely from 1. Unknown or equal ids are
// logged and ignored. If persisting any of the new orders fails, the
// whole list is restored; orders already written are not undone.
func (e *Engine) Reorder(ctx context.Context, activeID, overID string) error {
	if activeID == "" || overID == "" || activeID == overID {
		e.logger.Warn("invalid todo ids for reordering",
			slog.String("active_id", activeID),
			slog.String("over_id", overID))
		return nil
	}

	before, reordered, installed, err := e.apply(func(items []models.Item) ([]models.Item, error) {
		from := order.IndexOf(items, activeID)
		to := order.IndexOf(items, overID)
		if from == -1 || to == -1 {
			return nil, errUnknownID
		}
		return order.Rerank(order.Move(items, from, to)), nil
	})
	if err != nil {
		e.logger.Warn("invalid todo ids for reordering",
			slog.String("active_id", activeID),
			slog.String("over_id", overID))
		return nil
	}

	if err := e.persistOrders(ctx, reordered); err != nil {
		e.logger.Error("failed to reorder todos",
			slog.String("active_id", activeID),
			slog.String("over_id", overID),
			slog.Any("err", err))
		return e.rollback(ctx, "reorder todos", before, installed, err)
	}

	e.logger.Debug("todos reordered",
		slog.String("active_id", activeID),
		slog.String("over_id", overID),
		slog.Int("count", len(reordered)))
	return nil
}

// UpdateOrder writes a single order value to the store without touching
// the local list. Orders outside 1..models.MaxOrder are logged and ignored.
func (e *Engine) UpdateOrder(ctx context.Context, id string, newOrder int) error {
	if strings.TrimSpace(id) == "" {
		e.logger.Warn("todo id is required for order update")
		return nil
	}
	if err := models.ValidateOrder(newOrder); err != nil {
		e.logger.Warn("todo order out of range", slog.String("id", id), slog.Int("order", newOrder))
		return nil
	}

	if _, err := e.store.Update(ctx, store.UpdateInput{ID: id, Order: &newOrder}); err != nil {
		e.logger.Error("failed to update todo order", slog.String("id", id), slog.Any("err", err))
		return fmt.Errorf("update todo order: %w", err)
	}
	return nil
}

var errUnknownID = errors.New("unknown todo id")

// apply installs the list fn derives from the current one. When another
// writer gets in between, fn is re-run against the newer list. It returns
// the list fn was given, the list it produced, and the installed version.
func (e *Engine) apply(fn func([]models.Item) ([]models.Item, error)) ([]models.Item, []models.Item, uint64, error) {
	for {
		items, version := e.state.Load()
		next, err := fn(items)
		if err != nil {
			return items, nil, version, err
		}
		if installed, ok := e.state.CompareAndSwap(version, next); ok {
			return items, next, installed, nil
		}
	}
}

// rollback restores before if nothing changed the list since installed.
// Otherwise the newer list is kept, the store is re-read, and the cause
// is reported together with ErrConflict.
func (e *Engine) rollback(ctx context.Context, op string, before []models.Item, installed uint64, cause error) error {
	if _, ok := e.state.CompareAndSwap(installed, before); ok {
		return fmt.Errorf("%s: %w", op, cause)
	}

	e.logger.Warn("todo list changed before rollback, refreshing", slog.String("op", op))
	if err := e.Refresh(ctx); err != nil {
		e.logger.Error("failed to refresh todos after conflict", slog.Any("err", err))
	}
	return fmt.Errorf("%s: %w", op, errors.Join(cause, ErrConflict))
}

// persistOrders writes the order of every item, in one batch when the
// store supports it and as concurrent single updates otherwise. All
// updates run to completion before the first failure is reported.
func (e *Engine) persistOrders(ctx context.Context, items []models.Item) error {
	updates := make([]store.UpdateInput, len(items))
	for i, item := range items {
		updates[i] = store.UpdateInput{ID: item.ID, Order: models.IntPtr(item.Order)}
	}

	if batch, ok := e.store.(store.BatchUpdater); ok {
		return batch.UpdateOrders(ctx, updates)
	}

	var g errgroup.Group
	if e.maxInFlight > 0 {
		g.SetLimit(e.maxInFlight)
	}
	for _, u := range updates {
		g.Go(func() error {
			_, err := e.store.Update(ctx, u)
			return err
		})
	}
	return g.Wait()
}
