package domain

import "errors"

// ErrValidation is returned when required input is missing or malformed. Never retried.
var ErrValidation = errors.New("validation error")

// ErrNotInitialized is returned when a league has no stored record.
var ErrNotInitialized = errors.New("league not initialized")

// ErrNotFound is returned by stores when a key does not exist.
var ErrNotFound = errors.New("not found")

// ErrWorkflowNotFound is returned when a workflow id is unknown.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrWorkflowExists is returned when creating a workflow with an id already in use.
var ErrWorkflowExists = errors.New("workflow already exists")

// ErrTransientEvaluation wraps a failed evaluation attempt.
var ErrTransientEvaluation = errors.New("transient evaluation failure")

// ErrSideEffect wraps failures of best-effort steps. Logged, never escalated.
var ErrSideEffect = errors.New("side effect failure")

// ErrStreamDisconnected is reported to a subscriber whose connection was closed before delivery.
var ErrStreamDisconnected = errors.New("stream disconnected")

// ErrInvalidTransition is returned when a workflow status would regress.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrClosed is returned by components that were shut down.
var ErrClosed = errors.New("closed")
