package shared

import (
	"context"
	"fmt"
	"log/slog"
)

// CompensationStep pairs a forward action with the undo that reverses it.
// Undo funcs run only for steps whose action already committed.
type CompensationStep struct {
	Name string
	Run  func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Workflow executes multi-step flows that span aggregates without a single
// atomic transaction. When a later step fails, the undos of completed steps
// run in reverse order, best effort; undo failures are logged with full
// context and the original error is surfaced unchanged.
type Workflow struct {
	name   string
	logger *slog.Logger
	steps  []CompensationStep
}

// NewWorkflow builds a named compensation workflow.
func NewWorkflow(name string, logger *slog.Logger) *Workflow {
	return &Workflow{name: name, logger: logger}
}

// Step appends a forward action with an optional undo.
func (w *Workflow) Step(name string, run func(ctx context.Context) error, undo func(ctx context.Context) error) *Workflow {
	w.steps = append(w.steps, CompensationStep{Name: name, Run: run, Undo: undo})
	return w
}

// Execute runs every step in order. There is no mid-flight cancellation:
// once a step has mutated state the flow runs to completion or to explicit
// compensation.
func (w *Workflow) Execute(ctx context.Context) error {
	for i, step := range w.steps {
		if err := step.Run(ctx); err != nil {
			w.rollback(ctx, i, err)
			return fmt.Errorf("%s: %s: %w", w.name, step.Name, err)
		}
	}
	return nil
}

func (w *Workflow) rollback(ctx context.Context, failedIdx int, cause error) {
	for i := failedIdx - 1; i >= 0; i-- {
		step := w.steps[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil && w.logger != nil {
			w.logger.Error("compensation failed, manual reconciliation required",
				slog.String("workflow", w.name),
				slog.String("step", step.Name),
				slog.Any("undo_error", err),
				slog.Any("original_error", cause),
			)
		}
	}
}
