package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"mytodos/internal/feed"
	"mytodos/internal/models"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	subs *feed.Feed[Snapshot]

	// mu serializes writes with snapshot publication so subscribers
	// observe changes in commit order.
	mu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store with the given database path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db, subs: feed.New[Snapshot]()}, nil
}

// Close closes all subscriptions and the database connection.
func (s *SQLiteStore) Close() error {
	s.subs.Close()
	return s.db.Close()
}

// Create inserts a new todo and assigns it a fresh id.
func (s *SQLiteStore) Create(ctx context.Context, in CreateInput) (models.Item, error) {
	content, err := models.ValidateContent(in.Content)
	if err != nil {
		return models.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	item := models.Item{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var sortOrder sql.NullInt64
	if in.Order != nil {
		sortOrder = sql.NullInt64{Int64: int64(*in.Order), Valid: true}
		item.Order = *in.Order
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO todos (id, content, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, item.ID, item.Content, sortOrder, now, now)
	if err != nil {
		return models.Item{}, fmt.Errorf("failed to create todo: %w", err)
	}

	s.publishLocked(ctx)
	return item, nil
}

func (s *SQLiteStore) get(ctx context.Context, id string) (models.RawItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, sort_order, created_at, updated_at
		FROM todos WHERE id = ?
	`, id)

	item, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RawItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return models.RawItem{}, fmt.Errorf("failed to get todo: %w", err)
	}
	return item, nil
}

// List returns every todo in insertion order. Ordering by sort_order is
// left to the caller since legacy rows have none.
func (s *SQLiteStore) List(ctx context.Context) ([]models.RawItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, sort_order, created_at, updated_at
		FROM todos ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	items := []models.RawItem{}
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Update applies the non-nil fields of in to an existing todo.
func (s *SQLiteStore) Update(ctx context.Context, in UpdateInput) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := updateTodo(ctx, s.db, in, time.Now().UTC()); err != nil {
		return models.Item{}, err
	}

	raw, err := s.get(ctx, in.ID)
	if err != nil {
		return models.Item{}, err
	}

	s.publishLocked(ctx)
	return toItem(raw), nil
}

// UpdateOrders applies all updates in a single transaction.
func (s *SQLiteStore) UpdateOrders(ctx context.Context, updates []UpdateInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, in := range updates {
		if err := updateTodo(ctx, tx, in, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order updates: %w", err)
	}

	s.publishLocked(ctx)
	return nil
}

// Delete removes a todo by id. Deleting an unknown id returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	if err := requireAffected(result, id); err != nil {
		return err
	}

	s.publishLocked(ctx)
	return nil
}

// SubscribeAll implements Store.
func (s *SQLiteStore) SubscribeAll(ctx context.Context) (<-chan Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.subs.Subscribe(ctx, Snapshot{Items: items})
}

// publishLocked sends the current item set to subscribers. s.mu must be
// held. A failed read skips this emission; the next write publishes again.
func (s *SQLiteStore) publishLocked(ctx context.Context) {
	if s.subs.Len() == 0 {
		return
	}
	items, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	s.subs.Publish(Snapshot{Items: items})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateTodo(ctx context.Context, db execer, in UpdateInput, now time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if in.Order != nil {
		result, err = db.ExecContext(ctx, `
			UPDATE todos SET sort_order = ?, updated_at = ? WHERE id = ?
		`, *in.Order, now, in.ID)
	} else {
		result, err = db.ExecContext(ctx, `
			UPDATE todos SET updated_at = ? WHERE id = ?
		`, now, in.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	return requireAffected(result, in.ID)
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(row scanner) (models.RawItem, error) {
	var (
		item      models.RawItem
		sortOrder sql.NullInt64
	)
	if err := row.Scan(&item.ID, &item.Content, &sortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return models.RawItem{}, err
	}
	if sortOrder.Valid {
		v := int(sortOrder.Int64)
		item.Order = &v
	}
	return item, nil
}

func toItem(raw models.RawItem) models.Item {
	item := models.Item{
		ID:        raw.ID,
		Content:   raw.Content,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	if raw.Order != nil {
		item.Order = *raw.Order
	}
	return item
}
