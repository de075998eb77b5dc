package ports

import (
	"context"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// Store persists JSON-serializable documents keyed by id.
// This allows for durable execution, enabling "Stop & Resume" of leagues and workflows.
type Store[T any] interface {
	// Save persists the document for the given id, replacing any previous version in full.
	Save(ctx context.Context, id string, doc *T) error

	// Load retrieves the document for the given id.
	// Returns domain.ErrNotFound if the id does not exist.
	Load(ctx context.Context, id string) (*T, error)

	// Delete removes the document for the given id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the ids currently stored.
	List(ctx context.Context) ([]string, error)
}

// LeagueStore persists one snapshot (league, history, memory) per league id.
type LeagueStore = Store[domain.LeagueSnapshot]

// WorkflowStore persists one record (status, cursor, checkpoints) per workflow id.
type WorkflowStore = Store[domain.WorkflowRecord]
