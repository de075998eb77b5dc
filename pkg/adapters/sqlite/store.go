package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// Store implements ports.Store for one document namespace.
type Store[T any] struct {
	db        *DB
	namespace string
}

// NewStore returns a store for documents of one kind.
func NewStore[T any](db *DB, namespace string) *Store[T] {
	return &Store[T]{db: db, namespace: namespace}
}

// Save upserts the document.
func (s *Store[T]) Save(ctx context.Context, id string, doc *T) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", domain.ErrValidation)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.db.sqlDB.ExecContext(ctx, `
INSERT INTO documents (namespace, id, body, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
`, s.namespace, id, body, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", s.namespace, id, err)
	}
	return nil
}

// Load reads the document.
func (s *Store[T]) Load(ctx context.Context, id string) (*T, error) {
	var body []byte
	err := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE namespace = ? AND id = ?`, s.namespace, id,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load %s/%s: %w", s.namespace, id, err)
	}

	var doc T
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// Delete removes the document. Missing documents are not an error.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if _, err := s.db.sqlDB.ExecContext(ctx,
		`DELETE FROM documents WHERE namespace = ? AND id = ?`, s.namespace, id,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.namespace, id, err)
	}
	return nil
}

// List returns ids in the namespace, oldest update first.
func (s *Store[T]) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.sqlDB.QueryContext(ctx,
		`SELECT id FROM documents WHERE namespace = ? ORDER BY updated_at, id`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.namespace, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", s.namespace, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
