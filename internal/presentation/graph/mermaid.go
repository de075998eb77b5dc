package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// Step is one node of the pipeline chart.
type Step struct {
	Name       string
	BestEffort bool
}

// Overlay marks the progress of one workflow on the chart.
type Overlay struct {
	Done    []string
	Failed  []string
	Current string
}

// OverlayFor derives the overlay from a stored record. Checkpoints with an error are failed;
// the step at the cursor is current while the workflow is still pending.
func OverlayFor(rec *domain.WorkflowRecord, steps []Step) *Overlay {
	o := &Overlay{}
	for _, cp := range rec.Steps {
		if cp.Error != "" {
			o.Failed = append(o.Failed, cp.Name)
			continue
		}
		o.Done = append(o.Done, cp.Name)
	}
	if rec.Pending(len(steps)) && rec.Cursor < len(steps) {
		o.Current = steps[rec.Cursor].Name
	}
	if rec.Status == domain.StatusErrored && rec.Cursor < len(steps) {
		o.Failed = append(o.Failed, steps[rec.Cursor].Name)
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of the step pipeline.
// Critical steps are rectangles; best-effort steps are rounded and joined by dotted edges.
func GenerateMermaid(steps []Step, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, s := range steps {
		id := sanitizeMermaidID(s.Name)
		opener, closer := "[", "]"
		if s.BestEffort {
			opener, closer = "(", ")"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, s.Name, closer)

		if i == 0 {
			continue
		}
		arrow := "-->"
		if s.BestEffort {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(steps[i-1].Name), arrow, id)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef done fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		writeClass(&sb, overlay.Done, "done")
		writeClass(&sb, overlay.Failed, "failed")
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Current))
		}
	}

	return sb.String()
}

func writeClass(sb *strings.Builder, names []string, class string) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		id := sanitizeMermaidID(n)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		fmt.Fprintf(sb, "    class %s %s;\n", id, class)
	}
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_").Replace(id)
}
