// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validation  *shared.ValidationError
		validations shared.ValidationErrors
		dependency  *shared.DependencyFailure
		partial     *shared.PartialCompensationFailure
	)
	switch {
	case errors.As(err, &partial):
		Problem(w, http.StatusInternalServerError, "Compensation Failed", partial.Error())
	case errors.As(err, &dependency):
		w.Header().Set("Retry-After", "5")
		Problem(w, http.StatusServiceUnavailable, "Dependency Failure", dependency.Error())
	case errors.As(err, &validations):
		ProblemWithFields(w, http.StatusUnprocessableEntity, "Validation Failed", validations.Error(), fieldMap(validations))
	case errors.As(err, &validation):
		ProblemWithFields(w, http.StatusUnprocessableEntity, "Validation Failed", validation.Error(), fieldMap(shared.ValidationErrors{validation}))
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrNotEditable):
		Problem(w, http.StatusConflict, "Not Editable", err.Error())
	case errors.Is(err, shared.ErrLocked):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Locked", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func fieldMap(errs shared.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		if e.Field == "" {
			continue
		}
		out[e.Field] = e.Reason
	}
	return out
}
