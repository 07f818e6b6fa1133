package httpapi

import (
	"errors"

	"github.com/gin-gonic/gin"

	"outreach-platform/internal/dispositions"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/outcomes"
	"outreach-platform/internal/queue"
	"outreach-platform/internal/reporting"
	"outreach-platform/pkg/apperr"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/validator"
)

type errorBody struct {
	Error    string   `json:"error"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// translate maps domain errors onto apperr kinds. Unknown errors become internal.
func translate(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}

	var verr *outcomes.ValidationError
	if errors.As(err, &verr) {
		return apperr.Wrap(apperr.KindValidation, "validation failed", err).
			WithDetails(errorBody{Errors: verr.Errors, Warnings: verr.Warnings})
	}

	switch {
	case errors.Is(err, outcomes.ErrUnknownOutcomeType):
		return apperr.Wrap(apperr.KindBadRequest, "unknown outcome type", err)
	case errors.Is(err, outcomes.ErrOutcomeExecutionFailed):
		return apperr.Wrap(apperr.KindInternal, "outcome execution failed", err)
	case errors.Is(err, dispositions.ErrTransitionPersistence):
		return apperr.Wrap(apperr.KindUnavailable, "transition could not be persisted, retry", err)
	case errors.Is(err, dispositions.ErrAlreadyDisposed):
		return apperr.Wrap(apperr.KindConflict, "session already disposed", err)
	case errors.Is(err, dispositions.ErrSessionNotFound):
		return apperr.Wrap(apperr.KindNotFound, "session not found", err)
	case errors.Is(err, queue.ErrUserInactive):
		return apperr.Wrap(apperr.KindConflict, "user is inactive, reset required", err)
	case errors.Is(err, queue.ErrInvalidArgument):
		return apperr.Wrap(apperr.KindBadRequest, err.Error(), err)
	case errors.Is(err, queue.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "not found", err)
	case errors.Is(err, monitor.ErrRunInProgress):
		return apperr.Wrap(apperr.KindConflict, "monitor run already in progress", err)
	case errors.Is(err, reporting.ErrInvalidRequest):
		return apperr.Wrap(apperr.KindBadRequest, "invalid time range", err)
	default:
		return apperr.Wrap(apperr.KindInternal, "internal error", err)
	}
}

// abort writes err as JSON. Internal failures are logged with their cause.
func abort(c *gin.Context, err error) {
	ae := translate(err)
	status := ae.HTTPStatus()
	if status >= 500 {
		logger.FromGin(c).Error("request failed", "err", err, "status", status)
		_ = c.Error(err)
	}

	body := errorBody{Error: ae.Message}
	if d, ok := ae.Details.(errorBody); ok {
		body.Errors = d.Errors
		body.Warnings = d.Warnings
	}
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes and validates the request body, aborting with 400 on bad
// JSON and 422 on rule violations.
func (h Handlers) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abort(c, apperr.BadRequest("invalid json"))
		return false
	}
	if h.Validator == nil {
		return true
	}
	if err := h.Validator.Struct(dst); err != nil {
		abort(c, apperr.Validation("validation failed").
			WithDetails(errorBody{Errors: validator.Messages(err)}))
		return false
	}
	return true
}
