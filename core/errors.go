package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SyncErrorBadInput          = "SYNC_BAD_INPUT"
	SyncErrorValidation        = "SYNC_VALIDATION_FAILED"
	SyncErrorUnauthorized      = "SYNC_UNAUTHORIZED"
	SyncErrorForbidden         = "SYNC_FORBIDDEN"
	SyncErrorNotFound          = "SYNC_NOT_FOUND"
	SyncErrorConflict          = "SYNC_CONFLICT"
	SyncErrorInvalidTransition = "SYNC_INVALID_TRANSITION"
	SyncErrorRateLimited       = "SYNC_RATE_LIMITED"
	SyncErrorTransient         = "SYNC_TRANSIENT_NETWORK"
	SyncErrorExternalFailure   = "SYNC_EXTERNAL_FAILURE"
	SyncErrorInternal          = "SYNC_INTERNAL_ERROR"
)

type ErrorClass string

const (
	// ErrorClassTransient failures are retried by the queue engine.
	ErrorClassTransient  ErrorClass = "transient"
	ErrorClassAuth       ErrorClass = "auth"
	ErrorClassValidation ErrorClass = "validation"
	// ErrorClassConflict failures are retried after the retry delay, like
	// transient ones, and count against the retry budget.
	ErrorClassConflict ErrorClass = "conflict"
)

func (c ErrorClass) Recoverable() bool {
	return c == ErrorClassTransient
}

// AuthError reports a bad or expired credential. Never retried.
func AuthError(message string, metadata map[string]any) *goerrors.Error {
	return newSyncError(message, goerrors.CategoryAuth, http.StatusUnauthorized, SyncErrorUnauthorized, metadata)
}

// TransientNetworkError reports a timeout, connection failure or 5xx reply.
func TransientNetworkError(source error, message string, metadata map[string]any) *goerrors.Error {
	return wrapSyncError(source, goerrors.CategoryExternal, message, http.StatusBadGateway, SyncErrorTransient, metadata)
}

// ValidationError reports a malformed payload or an unmapped topic.
func ValidationError(message string, metadata map[string]any) *goerrors.Error {
	return newSyncError(message, goerrors.CategoryValidation, http.StatusBadRequest, SyncErrorValidation, metadata)
}

// ConflictError reports an exclusivity violation found at claim time.
func ConflictError(message string, metadata map[string]any) *goerrors.Error {
	return newSyncError(message, goerrors.CategoryConflict, http.StatusConflict, SyncErrorConflict, metadata)
}

func NotFoundError(source error, message string, metadata map[string]any) *goerrors.Error {
	return wrapSyncError(source, goerrors.CategoryNotFound, message, http.StatusNotFound, SyncErrorNotFound, metadata)
}

// InvalidTransitionError is returned for operator actions attempted from a
// state that does not allow them.
func InvalidTransitionError(jobID string, from JobState, to JobState) *goerrors.Error {
	return wrapSyncError(
		ErrInvalidJobStateTransition,
		goerrors.CategoryConflict,
		"core: job "+strings.TrimSpace(jobID)+" cannot move from "+string(from)+" to "+string(to),
		http.StatusConflict,
		SyncErrorInvalidTransition,
		map[string]any{"job_id": jobID, "from": string(from), "to": string(to)},
	)
}

func newSyncError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapSyncError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return newSyncError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// Classify decides how the queue engine treats a failure. Anything that is
// not explicitly typed is considered transient.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassTransient
	}
	if errors.Is(err, ErrInvalidJobStateTransition) {
		return ErrorClassValidation
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz:
			return ErrorClassAuth
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return ErrorClassValidation
		case goerrors.CategoryConflict:
			return ErrorClassConflict
		default:
			return ErrorClassTransient
		}
	}
	return ErrorClassTransient
}

// MapError converts any error into the rich envelope used by the command,
// query and HTTP layers.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSyncErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrShadowRecordNotFound),
		errors.Is(err, ErrRegistrationNotFound),
		errors.Is(err, ErrDeliveryLogNotFound),
		errors.Is(err, ErrScopeNotFound):
		return ensureSyncErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()))
	case errors.Is(err, ErrJobNotRunning), errors.Is(err, ErrShadowRecordExists):
		return ensureSyncErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()))
	case errors.Is(err, ErrInvalidJobStateTransition):
		return ensureSyncErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).WithTextCode(SyncErrorInvalidTransition),
		)
	case errors.Is(err, ErrUnknownOperation):
		return ensureSyncErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		return ensureSyncErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryExternal, err.Error()).
			WithTextCode(SyncErrorTransient))
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureSyncErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput))
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return ensureSyncErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryRateLimit))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSyncErrorEnvelope(mapped)
}

func ensureSyncErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = syncHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = DefaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func DefaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return SyncErrorBadInput
	case goerrors.CategoryValidation:
		return SyncErrorValidation
	case goerrors.CategoryNotFound:
		return SyncErrorNotFound
	case goerrors.CategoryAuth:
		return SyncErrorUnauthorized
	case goerrors.CategoryAuthz:
		return SyncErrorForbidden
	case goerrors.CategoryConflict:
		return SyncErrorConflict
	case goerrors.CategoryRateLimit:
		return SyncErrorRateLimited
	case goerrors.CategoryExternal:
		return SyncErrorExternalFailure
	default:
		return SyncErrorInternal
	}
}

func syncHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
