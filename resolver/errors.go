package resolver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

func resolverValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return core.ValidationError("resolver: "+err.Error(), nil)
	}
	details := make([]goerrors.FieldError, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		details = append(details, goerrors.FieldError{
			Field:   fieldPath(fieldErr.Namespace()),
			Message: validationMessage(fieldErr),
		})
	}
	return goerrors.NewValidation("resolver: upsert request is invalid", details...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.SyncErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

func validationMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "This field is required"
	default:
		return "Failed " + fieldErr.Tag() + " validation"
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.IndexByte(namespace, '.'); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
