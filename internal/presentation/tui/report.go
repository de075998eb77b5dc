package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// SnapshotMarkdown renders a workflow snapshot as a short report.
func SnapshotMarkdown(snap domain.WorkflowSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Trade `%s`\n\n**Status:** %s\n\n", snap.ID, snap.Status)

	if snap.Error != "" {
		fmt.Fprintf(&sb, "> %s\n\n", snap.Error)
	}
	if snap.Output == nil {
		return sb.String()
	}

	ev := snap.Output.Evaluation
	fmt.Fprintf(&sb, "## Grade %s\n\n", ev.Grade)
	sb.WriteString("| Side | Value delta |\n|---|---|\n")
	fmt.Fprintf(&sb, "| From | %+.1f |\n| To | %+.1f |\n\n", ev.DeltaValueFrom, ev.DeltaValueTo)

	writeList(&sb, "Risks", ev.Risks)
	writeList(&sb, "Comparable trades", ev.Comps)

	if ev.PersonaWriteup != "" {
		fmt.Fprintf(&sb, "## Writeup\n\n%s\n", ev.PersonaWriteup)
	}
	return sb.String()
}

// MemoryMarkdown renders a league's memory summary.
func MemoryMarkdown(leagueID string, mem domain.MemorySummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# League `%s` memory\n\n", leagueID)
	fmt.Fprintf(&sb, "_%d trades, updated %s_\n\n", mem.TradeCount, mem.LastUpdated.Format(time.RFC3339))
	sb.WriteString(mem.PersonaNotes)
	sb.WriteString("\n")
	return sb.String()
}

// RecordMarkdown renders a stored workflow record with its checkpoints.
func RecordMarkdown(rec *domain.WorkflowRecord, steps []string) string {
	var sb strings.Builder
	sb.WriteString(SnapshotMarkdown(rec.Snapshot()))
	fmt.Fprintf(&sb, "\n## Steps (%d/%d)\n\n", rec.Cursor, len(steps))
	sb.WriteString("| Step | Attempts | Result | Completed |\n|---|---|---|---|\n")
	for _, name := range steps {
		cp, ok := rec.Checkpoint(name)
		if !ok {
			fmt.Fprintf(&sb, "| %s | - | pending | - |\n", name)
			continue
		}
		result := "ok"
		if cp.Error != "" {
			result = "failed: " + cp.Error
		}
		fmt.Fprintf(&sb, "| %s | %d | %s | %s |\n", name, cp.Attempts, result, cp.CompletedAt.Format(time.RFC3339))
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	fmt.Fprintf(sb, "## %s\n\n", title)
	if len(items) == 0 {
		sb.WriteString("_none_\n\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
	sb.WriteString("\n")
}
