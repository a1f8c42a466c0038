package store

import (
	"context"
	"errors"

	"mytodos/internal/feed"
	"mytodos/internal/models"
)

// ErrNotFound is returned when an operation targets an unknown todo id.
var ErrNotFound = errors.New("todo not found")

// ErrClosed is returned when subscribing to a closed store.
var ErrClosed = feed.ErrClosed

// CreateInput holds the fields accepted when creating a todo.
type CreateInput struct {
	Content string
	Order   *int
}

// UpdateInput holds the fields accepted when updating a todo.
// A nil Order leaves the stored order untouched.
type UpdateInput struct {
	ID    string
	Order *int
}

// Snapshot is one emission of a live query: the full current item set.
type Snapshot struct {
	Items []models.RawItem
}

// Store defines the remote data service the todo list is mirrored from.
type Store interface {
	Create(ctx context.Context, in CreateInput) (models.Item, error)
	Update(ctx context.Context, in UpdateInput) (models.Item, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.RawItem, error)

	// SubscribeAll delivers the full item set once immediately and again
	// after every change. The channel is closed when ctx is done or the
	// store is closed.
	SubscribeAll(ctx context.Context) (<-chan Snapshot, error)

	// Lifecycle
	Close() error
}

// BatchUpdater is implemented by stores that can apply several updates
// atomically. Either every update is applied or none is.
type BatchUpdater interface {
	UpdateOrders(ctx context.Context, updates []UpdateInput) error
}
