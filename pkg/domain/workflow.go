package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkflowStatus is the lifecycle position of a workflow instance.
type WorkflowStatus string

const (
	StatusQueued     WorkflowStatus = "queued"
	StatusRunning    WorkflowStatus = "running"
	StatusComplete   WorkflowStatus = "complete"
	StatusErrored    WorkflowStatus = "errored"
	StatusTerminated WorkflowStatus = "terminated"
)

// IsTerminal reports whether no further step may execute.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusErrored, StatusTerminated:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next keeps the status monotonic.
func (s WorkflowStatus) CanTransition(next WorkflowStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next.IsTerminal()
	case StatusRunning:
		return next == StatusRunning || next.IsTerminal()
	}
	return false
}

// Step names, in execution order.
const (
	StepFetchLeague   = "fetch-league"
	StepEvaluate      = "evaluate-trade"
	StepAppendHistory = "append-history"
	StepFetchMemory   = "fetch-memory"
	StepNotify        = "notify-stream"
)

// EvaluateTradeInput is the payload a workflow is created with.
type EvaluateTradeInput struct {
	WorkflowID string        `json:"workflowId" mapstructure:"workflowId"`
	LeagueID   string        `json:"leagueId" mapstructure:"leagueId"`
	Proposal   TradeProposal `json:"proposal" mapstructure:"proposal"`
	Persona    string        `json:"persona,omitempty" mapstructure:"persona"`
}

// Normalize fills defaults derived from the proposal.
func (in *EvaluateTradeInput) Normalize() {
	if in.LeagueID == "" {
		in.LeagueID = in.Proposal.LeagueID
	}
	if in.Proposal.LeagueID == "" {
		in.Proposal.LeagueID = in.LeagueID
	}
	if strings.TrimSpace(in.Persona) == "" {
		in.Persona = DefaultPersona
	}
}

// Validate checks that the input can drive a workflow.
func (in EvaluateTradeInput) Validate() error {
	if strings.TrimSpace(in.LeagueID) == "" {
		return fmt.Errorf("%w: leagueId is required", ErrValidation)
	}
	if in.Proposal.LeagueID != in.LeagueID {
		return fmt.Errorf("%w: proposal.leagueId %q does not match %q", ErrValidation, in.Proposal.LeagueID, in.LeagueID)
	}
	return in.Proposal.Validate()
}

// WorkflowOutput is the result a completed workflow carries.
type WorkflowOutput struct {
	OK         bool            `json:"ok"`
	Evaluation TradeEvaluation `json:"evaluation"`
}

// WorkflowSnapshot is what callers observe, both when polling and on the stream.
type WorkflowSnapshot struct {
	ID     string          `json:"id"`
	Status WorkflowStatus  `json:"status"`
	Output *WorkflowOutput `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StepCheckpoint is the persisted outcome of a finished step.
// Best-effort steps that failed are checkpointed too, with Error set, so they are not replayed.
type StepCheckpoint struct {
	Name        string          `json:"name"`
	Output      json.RawMessage `json:"output,omitempty"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completedAt"`
}

// WorkflowRecord is the durable state of one workflow instance.
type WorkflowRecord struct {
	ID        string             `json:"id"`
	Status    WorkflowStatus     `json:"status"`
	Input     EvaluateTradeInput `json:"input"`
	Output    *WorkflowOutput    `json:"output,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cursor    int                `json:"cursor"`
	Steps     []StepCheckpoint   `json:"steps"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// NewWorkflowRecord creates a queued record for the given input.
func NewWorkflowRecord(id string, input EvaluateTradeInput, now time.Time) *WorkflowRecord {
	return &WorkflowRecord{
		ID:        id,
		Status:    StatusQueued,
		Input:     input,
		Steps:     []StepCheckpoint{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the record to next, refusing regressions out of terminal states.
func (r *WorkflowRecord) Transition(next WorkflowStatus, now time.Time) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Checkpoint returns the stored checkpoint for a step, if the step completed.
func (r *WorkflowRecord) Checkpoint(name string) (StepCheckpoint, bool) {
	for _, cp := range r.Steps {
		if cp.Name == name {
			return cp, true
		}
	}
	return StepCheckpoint{}, false
}

// Pending reports whether steps remain to run. No step runs once a workflow is
// terminal, with one exception: best-effort steps after evaluation still run on a
// complete workflow, since complete is persisted before the result is pushed. They
// may also be pending if the process stopped right after evaluation.
func (r *WorkflowRecord) Pending(totalSteps int) bool {
	switch r.Status {
	case StatusQueued, StatusRunning:
		return true
	case StatusComplete:
		return r.Cursor < totalSteps
	}
	return false
}

// Snapshot projects the record into its caller-visible form.
func (r *WorkflowRecord) Snapshot() WorkflowSnapshot {
	snap := WorkflowSnapshot{ID: r.ID, Status: r.Status, Error: r.Error}
	if r.Status == StatusComplete && r.Output != nil {
		out := *r.Output
		snap.Output = &out
	}
	return snap
}
