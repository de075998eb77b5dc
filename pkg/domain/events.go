package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventStepFailed   EventType = "step_failed"
	EventStatusChange EventType = "status_change"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	WorkflowID string    `json:"workflow_id"`
}

// StepEvent reports progress of a single workflow step.
type StepEvent struct {
	EventBase
	Step       string        `json:"step"`
	Attempt    int           `json:"attempt,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Skipped    bool          `json:"skipped,omitempty"` // completed in an earlier run
	BestEffort bool          `json:"best_effort,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// StatusEvent reports a workflow status transition.
type StatusEvent struct {
	EventBase
	From WorkflowStatus `json:"from"`
	To   WorkflowStatus `json:"to"`
}

// LifecycleHooks defines callbacks for workflow observability.
type LifecycleHooks struct {
	OnStepStart    func(context.Context, *StepEvent)
	OnStepComplete func(context.Context, *StepEvent)
	OnStepFailed   func(context.Context, *StepEvent)
	OnStatusChange func(context.Context, *StatusEvent)
}
