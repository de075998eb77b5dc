package ports

import (
	"context"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// Evaluator grades a proposal against a league snapshot.
// Implementations may fail transiently; the workflow retries them.
type Evaluator interface {
	Evaluate(ctx context.Context, league *domain.League, proposal domain.TradeProposal, persona string) (domain.TradeEvaluation, error)
}

// TextGenerator produces free text from a system and a user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Summarizer regenerates a league's narrative from its history window.
type Summarizer interface {
	Summarize(ctx context.Context, history []domain.TradeRecord) (string, error)
}

// CompsIndex is a similarity index over textual summaries of past trades.
type CompsIndex interface {
	// Add indexes the text of a trade under an id.
	Add(ctx context.Context, id, text string) error

	// Similar returns up to k texts judged similar to query.
	Similar(ctx context.Context, query string, k int) ([]string, error)
}

// Notifier pushes a completion payload to whoever observes a workflow id.
type Notifier interface {
	// Notify reports whether the payload reached a live subscriber (true) or was buffered (false).
	Notify(ctx context.Context, workflowID string, payload []byte) (bool, error)
}
