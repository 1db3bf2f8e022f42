// Package status models the closed sets of numeric codes the backup server
// returns for cleanroom recovery state.
package status

import (
	"errors"
	"fmt"
)

// ErrUnknownCode is wrapped by every failed code lookup.
var ErrUnknownCode = errors.New("unknown code")

// CodeError reports a raw code that does not belong to an enumeration.
type CodeError struct {
	Kind string
	Code int64
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.Code, ErrUnknownCode)
}

func (e *CodeError) Unwrap() error {
	return ErrUnknownCode
}

// RecoveryStatus is the outcome or phase of the latest recovery attempt of an entity.
type RecoveryStatus int

const (
	StatusNone                RecoveryStatus = 0
	StatusNotReady            RecoveryStatus = 1
	StatusReady               RecoveryStatus = 2
	StatusRecovered           RecoveryStatus = 3
	StatusFailed              RecoveryStatus = 4
	StatusRecoveredWithErrors RecoveryStatus = 5
	StatusInProgress          RecoveryStatus = 6
	StatusCleanedUp           RecoveryStatus = 7
	StatusMarkAsFailed        RecoveryStatus = 8
	StatusCleanupFailed       RecoveryStatus = 9
	StatusRecoveredWithThreat RecoveryStatus = 10
)

var recoveryStatusNames = map[RecoveryStatus]string{
	StatusNone:                "NO_STATUS",
	StatusNotReady:            "NOT_READY",
	StatusReady:               "READY",
	StatusRecovered:           "RECOVERED",
	StatusFailed:              "FAILED",
	StatusRecoveredWithErrors: "RECOVERED_WITH_ERRORS",
	StatusInProgress:          "IN_PROGRESS",
	StatusCleanedUp:           "CLEANED_UP",
	StatusMarkAsFailed:        "MARK_AS_FAILED",
	StatusCleanupFailed:       "CLEANUP_FAILED",
	StatusRecoveredWithThreat: "RECOVERED_WITH_THREATS",
}

// ParseRecoveryStatus converts a raw backend code. Codes outside the set fail.
func ParseRecoveryStatus(code int64) (RecoveryStatus, error) {
	s := RecoveryStatus(code)
	if _, ok := recoveryStatusNames[s]; !ok || int64(s) != code {
		return StatusNone, &CodeError{Kind: "recovery status", Code: code}
	}
	return s, nil
}

func (s RecoveryStatus) String() string {
	if name, ok := recoveryStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// IsTerminal reports whether no further transition happens without a new submission.
func (s RecoveryStatus) IsTerminal() bool {
	switch s {
	case StatusRecovered, StatusFailed, StatusRecoveredWithErrors, StatusCleanedUp,
		StatusMarkAsFailed, StatusCleanupFailed, StatusRecoveredWithThreat:
		return true
	}
	return false
}

// IsRecovered reports whether the entity has a recovered copy that cleanup can remove.
func (s RecoveryStatus) IsRecovered() bool {
	return s == StatusRecovered || s == StatusRecoveredWithErrors || s == StatusRecoveredWithThreat
}

// RecoveryReadiness tells whether a recovery may be attempted.
type RecoveryReadiness int

const (
	ReadinessNone     RecoveryReadiness = 0
	ReadinessNotReady RecoveryReadiness = 1
	ReadinessReady    RecoveryReadiness = 2
)

var readinessNames = map[RecoveryReadiness]string{
	ReadinessNone:     "NO_STATUS",
	ReadinessNotReady: "NOT_READY",
	ReadinessReady:    "READY",
}

func ParseReadiness(code int64) (RecoveryReadiness, error) {
	r := RecoveryReadiness(code)
	if _, ok := readinessNames[r]; !ok || int64(r) != code {
		return ReadinessNone, &CodeError{Kind: "recovery readiness", Code: code}
	}
	return r, nil
}

func (r RecoveryReadiness) String() string {
	if name, ok := readinessNames[r]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(r))
}

// ValidationStatus is the outcome of post-recovery threat or Defender scanning.
type ValidationStatus int

const (
	ValidationNone       ValidationStatus = 0
	ValidationInProgress ValidationStatus = 1
	ValidationSuccess    ValidationStatus = 2
	ValidationFailed     ValidationStatus = 3
	ValidationWarning    ValidationStatus = 4
)

var validationNames = map[ValidationStatus]string{
	ValidationNone:       "NONE",
	ValidationInProgress: "IN_PROGRESS",
	ValidationSuccess:    "SUCCESS",
	ValidationFailed:     "FAILED",
	ValidationWarning:    "WARNING",
}

func ParseValidationStatus(code int64) (ValidationStatus, error) {
	v := ValidationStatus(code)
	if _, ok := validationNames[v]; !ok || int64(v) != code {
		return ValidationNone, &CodeError{Kind: "validation status", Code: code}
	}
	return v, nil
}

func (v ValidationStatus) String() string {
	if name, ok := validationNames[v]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(v))
}
