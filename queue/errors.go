package queue

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

func queueValidationError(field string, message string) error {
	return goerrors.NewValidation("queue: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.SyncErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

func queueDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.SyncErrorInternal)
}

func queueUnsupportedError(op core.Operation) error {
	return goerrors.New("queue: operation "+string(op)+" is not supported", goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.SyncErrorValidation).
		WithMetadata(map[string]any{"operation": string(op)})
}

func queueRunningCancelError(jobID string) error {
	return goerrors.Wrap(
		core.ErrInvalidJobStateTransition,
		goerrors.CategoryConflict,
		"queue: job "+jobID+" is running and cannot be cancelled",
	).
		WithCode(http.StatusConflict).
		WithTextCode(core.SyncErrorInvalidTransition).
		WithMetadata(map[string]any{
			"job_id": jobID,
			"from":   string(core.JobStateRunning),
			"to":     string(core.JobStateCancelled),
		})
}

func queueProgressError(jobID string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryConflict, "queue: progress rejected for job "+jobID).
		WithCode(http.StatusConflict).
		WithTextCode(core.SyncErrorConflict)
}
