package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// LoggingHooks logs every lifecycle event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_start", "workflow_id", e.WorkflowID, "step", e.Step)
		},
		OnStepComplete: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_complete",
				"workflow_id", e.WorkflowID,
				"step", e.Step,
				"attempts", e.Attempt,
				"duration", e.Duration,
				"skipped", e.Skipped,
			)
		},
		OnStepFailed: func(ctx context.Context, e *domain.StepEvent) {
			level := slog.LevelError
			if e.BestEffort {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "step_failed",
				"workflow_id", e.WorkflowID,
				"step", e.Step,
				"attempts", e.Attempt,
				"err", e.Err,
			)
		},
		OnStatusChange: func(ctx context.Context, e *domain.StatusEvent) {
			logger.InfoContext(ctx, "status_change", "workflow_id", e.WorkflowID, "from", e.From, "to", e.To)
		},
	}
}

// CombineHooks returns hooks that call each set in order.
func CombineHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, s := range sets {
		out.OnStepStart = chainStep(out.OnStepStart, s.OnStepStart)
		out.OnStepComplete = chainStep(out.OnStepComplete, s.OnStepComplete)
		out.OnStepFailed = chainStep(out.OnStepFailed, s.OnStepFailed)
		out.OnStatusChange = chainStatus(out.OnStatusChange, s.OnStatusChange)
	}
	return out
}

func chainStep(a, b func(context.Context, *domain.StepEvent)) func(context.Context, *domain.StepEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.StepEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainStatus(a, b func(context.Context, *domain.StatusEvent)) func(context.Context, *domain.StatusEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.StatusEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
