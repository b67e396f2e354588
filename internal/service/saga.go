package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/rs/xid"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/metrics"
)

// sagaRun executes the steps of one multi-step operation in order. There is
// no rollback: the first failing step ends the run, and if anything had
// already been written the error comes back as *apperror.PartialFailure
// naming the steps that landed.
//
// Guards (reads that decide whether to start writing) run before the saga
// and are not steps.
type sagaRun struct {
	name      string
	logger    *slog.Logger
	completed []string
	failed    bool
}

func startSaga(logger *slog.Logger, name string) *sagaRun {
	return &sagaRun{
		name: name,
		logger: logger.With(
			slog.String("saga", name),
			slog.String("op", xid.New().String()),
		),
	}
}

// step runs fn, which must return an already classified error.
func (r *sagaRun) step(ctx context.Context, name string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		r.completed = append(r.completed, name)
		r.logger.Debug("saga step completed", slog.String("step", name))
		return nil
	}

	r.failed = true
	metrics.RecordSagaStepFailure(r.name, name)

	if len(r.completed) == 0 {
		level := slog.LevelInfo
		if errors.Is(err, apperror.ErrInternal) {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "saga failed before any write",
			slog.String("step", name),
			slog.String("error", err.Error()),
		)
		return err
	}

	completed := slices.Clone(r.completed)
	r.logger.Error("saga failed after partial progress",
		slog.String("step", name),
		slog.Any("completed", completed),
		slog.String("error", err.Error()),
	)
	return &apperror.PartialFailure{
		Saga:      r.name,
		Step:      name,
		Completed: completed,
		Err:       err,
	}
}

// finish records the outcome and returns err unchanged.
func (r *sagaRun) finish(err error) error {
	outcome := metrics.OutcomeCompleted
	switch {
	case r.failed && len(r.completed) > 0:
		outcome = metrics.OutcomePartial
	case r.failed || err != nil:
		outcome = metrics.OutcomeFailed
	}
	metrics.RecordSagaRun(r.name, outcome)
	if outcome == metrics.OutcomeCompleted {
		r.logger.Info("saga completed", slog.Any("steps", r.completed))
	}
	return err
}
