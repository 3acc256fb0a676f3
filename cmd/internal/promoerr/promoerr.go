// Package promoerr defines the error taxonomy shared by the promotion tooling.
//
// Each category is a sentinel that concrete errors are marked with, so callers
// classify failures with errors.Is while the message keeps the full context:
//
//	if errors.Is(err, promoerr.ErrValidationTimeout) { ... }
package promoerr

import (
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"
)

var (
	ErrConfiguration           = errors.New("configuration error")
	ErrZoneNotFound            = errors.New("hosted zone not found")
	ErrTrustViolation          = errors.New("delegation trust violation")
	ErrValidationTimeout       = errors.New("certificate validation timed out")
	ErrIssuanceFailed          = errors.New("certificate issuance failed")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrParameterNotReady       = errors.New("parameter not ready")
	ErrParameterNotFound       = errors.New("parameter never written")
	ErrStageFailure            = errors.New("stage failure")
	ErrRunConflict             = errors.New("run state conflict")
	ErrRunNotFound             = errors.New("run not found")
	ErrLockHeld                = errors.New("environment lock is held")
	ErrNotAwaitingApproval     = errors.New("run is not awaiting approval")
	ErrInvalidTransition       = errors.New("invalid pipeline transition")
)

// Configurationf returns a configuration error with a formatted message.
func Configurationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// StageFailure reports an error inside one pipeline deploy stage. The stage
// halts the pipeline; it never cascades to other stages.
type StageFailure struct {
	Stage       string
	Environment string
	Step        string
	Cause       error
}

func (e *StageFailure) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("stage %s (%s) failed at %s: %v", e.Stage, e.Environment, e.Step, e.Cause)
	}
	return fmt.Sprintf("stage %s (%s) failed: %v", e.Stage, e.Environment, e.Cause)
}

func (e *StageFailure) Unwrap() error { return e.Cause }

// Is makes every StageFailure match ErrStageFailure in addition to its cause.
func (e *StageFailure) Is(target error) bool { return target == ErrStageFailure }

var accessDeniedCodes = map[string]struct{}{
	"AccessDenied":          {},
	"AccessDeniedException": {},
	"UnauthorizedOperation": {},
	"NotAuthorized":         {},
}

// IsAccessDenied reports whether err is an AWS authorization failure.
func IsAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	_, ok := accessDeniedCodes[apiErr.ErrorCode()]
	return ok
}

// ClassifyAWS marks AWS authorization failures as ErrInsufficientPermissions and
// wraps the rest with the given operation description.
func ClassifyAWS(err error, op string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, op)
	if IsAccessDenied(err) {
		return errors.Mark(wrapped, ErrInsufficientPermissions)
	}
	return wrapped
}
