package stepflow

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeInvalidDefinition = "STEPFLOW_INVALID_DEFINITION"
	ErrCodeInvalidSource     = "STEPFLOW_INVALID_SOURCE"
	ErrCodeReadOnly          = "STEPFLOW_READ_ONLY"
	ErrCodeNoDraft           = "STEPFLOW_NO_DRAFT"
	ErrCodePublishRejected   = "STEPFLOW_PUBLISH_REJECTED"
	ErrCodeStepNotFound      = "STEPFLOW_STEP_NOT_FOUND"
	ErrCodeGuardRejected     = "STEPFLOW_GUARD_REJECTED"
	ErrCodeValidationFailed  = "STEPFLOW_VALIDATION_FAILED"
	ErrCodeSubmitFailed      = "STEPFLOW_SUBMIT_FAILED"
	ErrCodeDefinitionFetch   = "STEPFLOW_DEFINITION_FETCH"
	ErrCodeSessionClosed     = "STEPFLOW_SESSION_CLOSED"
	ErrCodeNotReady          = "STEPFLOW_NOT_READY"
	ErrCodeNoHistory         = "STEPFLOW_NO_HISTORY"
	ErrCodeExprSyntax        = "STEPFLOW_EXPR_SYNTAX"
	ErrCodeExprDisallowed    = "STEPFLOW_EXPR_DISALLOWED"
	ErrCodeFieldDepth        = "STEPFLOW_FIELD_DEPTH"
	ErrCodeDefinitionInUse   = "STEPFLOW_DEFINITION_IN_USE"
	ErrCodeRemote            = "STEPFLOW_REMOTE"
)

var (
	ErrInvalidDefinition = apperrors.New("invalid workflow definition", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidDefinition)
	ErrInvalidSource = apperrors.New("invalid workflow source", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidSource)
	ErrReadOnly = apperrors.New("session is read only", apperrors.CategoryConflict).
			WithTextCode(ErrCodeReadOnly)
	ErrNoDraft = apperrors.New("no draft to publish", apperrors.CategoryConflict).
			WithTextCode(ErrCodeNoDraft)
	ErrPublishRejected = apperrors.New("draft rejected for publish", apperrors.CategoryValidation).
				WithTextCode(ErrCodePublishRejected)
	ErrStepNotFound = apperrors.New("step not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeStepNotFound)
	ErrGuardRejected = apperrors.New("transition guard rejected", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeGuardRejected)
	ErrValidationFailed = apperrors.New("step validation failed", apperrors.CategoryValidation).
				WithTextCode(ErrCodeValidationFailed)
	ErrSubmitFailed = apperrors.New("submission failed", apperrors.CategoryExternal).
			WithTextCode(ErrCodeSubmitFailed)
	ErrDefinitionFetch = apperrors.New("workflow definition fetch failed", apperrors.CategoryExternal).
				WithTextCode(ErrCodeDefinitionFetch)
	ErrSessionClosed = apperrors.New("session closed", apperrors.CategoryConflict).
				WithTextCode(ErrCodeSessionClosed)
	ErrNotReady = apperrors.New("session not ready", apperrors.CategoryConflict).
			WithTextCode(ErrCodeNotReady)
	ErrNoHistory = apperrors.New("no previous step", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeNoHistory)
	ErrExprSyntax = apperrors.New("expression syntax error", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeExprSyntax)
	ErrExprDisallowed = apperrors.New("expression references a disallowed token", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeExprDisallowed)
	ErrFieldDepth = apperrors.New("field schema nesting too deep", apperrors.CategoryValidation).
			WithTextCode(ErrCodeFieldDepth)
	ErrDefinitionInUse = apperrors.New("workflow definition is in active use", apperrors.CategoryConflict).
				WithTextCode(ErrCodeDefinitionInUse)
	ErrRemote = apperrors.New("remote service error", apperrors.CategoryExternal).
			WithTextCode(ErrCodeRemote)
)

// NewError clones a sentinel and attaches the occurrence details.
func NewError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrInvalidDefinition
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors error in the chain.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
