package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/ports"
)

// MemorySystemPrompt instructs the generator to summarize a league's trade tendencies.
const MemorySystemPrompt = "You are a fantasy GM summarizing trade tendencies. " +
	"Write 2-3 sentences about what trends or biases this user shows based on the trades below."

// Summarizer implements ports.Summarizer. With a nil generator it writes a statistical summary.
type Summarizer struct {
	generator ports.TextGenerator
}

// NewSummarizer creates a Summarizer over g (which may be nil).
func NewSummarizer(g ports.TextGenerator) *Summarizer {
	return &Summarizer{generator: g}
}

// Summarize produces the narrative for the given history window.
func (s *Summarizer) Summarize(ctx context.Context, history []domain.TradeRecord) (string, error) {
	if s.generator == nil {
		return TrendSummary(history), nil
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return s.generator.Generate(ctx, MemorySystemPrompt, string(data))
}

// TrendSummary describes the grade mix and net value of history without a generator.
func TrendSummary(history []domain.TradeRecord) string {
	if len(history) == 0 {
		return domain.DefaultPersonaNotes
	}

	grades := map[domain.Grade]int{}
	var net float64
	injured := 0
	for _, rec := range history {
		grades[rec.Result.Grade]++
		net += rec.Result.DeltaValueFrom
		if len(rec.Result.Risks) > 0 {
			injured++
		}
	}

	keys := make([]string, 0, len(grades))
	for g := range grades {
		keys = append(keys, string(g))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, g := range keys {
		parts[i] = fmt.Sprintf("%d %s", grades[domain.Grade(g)], g)
	}

	lean := "balanced"
	switch {
	case net > 0:
		lean = "value-seeking"
	case net < 0:
		lean = "generous"
	}

	summary := fmt.Sprintf("Across the last %d trades (%s), this GM has been %s with a net projected swing of %.1f.",
		len(history), strings.Join(parts, ", "), lean, net)
	if injured > 0 {
		summary += fmt.Sprintf(" %d of them involved injured players.", injured)
	}
	return summary
}
