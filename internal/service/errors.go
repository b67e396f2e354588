package service

import (
	"errors"
	"log/slog"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/store"
)

// classify turns a repository error into an apperror kind. It is the only
// place store failures are interpreted:
//
//	already an apperror     -> unchanged (NotFound from a repository, etc.)
//	unique violation        -> Conflict, store message
//	other constraint        -> UpstreamConstraint, store message
//	anything else           -> Internal; the cause is logged, not returned
func classify(logger *slog.Logger, action string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var partial *apperror.PartialFailure
	if errors.As(err, &partial) {
		return err
	}

	if ce, ok := store.AsConstraint(err); ok {
		if ce.Kind == store.Unique {
			return apperror.ConflictMessage(ce.Message)
		}
		return apperror.UpstreamConstraint(ce.Message)
	}

	logger.Error("store failure",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
	return apperror.Internal("failed " + action)
}
