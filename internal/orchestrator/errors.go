package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MilestoneError is a failure of one milestone, with enough context to
// report which milestone failed and why.
type MilestoneError struct {
	MilestoneID string
	Message     string
	Err         error
	Timestamp   time.Time
}

// NewMilestoneError creates a MilestoneError with the current timestamp.
func NewMilestoneError(id, msg string, err error) *MilestoneError {
	return &MilestoneError{
		MilestoneID: id,
		Message:     msg,
		Err:         err,
		Timestamp:   time.Now(),
	}
}

// Error implements the error interface.
func (e *MilestoneError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("milestone %s: %s", e.MilestoneID, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *MilestoneError) Unwrap() error {
	return e.Err
}

// SessionError is a failure of a session's lifecycle: launch, health, or
// crash.
type SessionError struct {
	SessionID string
	Message   string
	Err       error
	Timestamp time.Time
}

// NewSessionError creates a SessionError with the current timestamp.
func NewSessionError(sessionID, msg string, err error) *SessionError {
	return &SessionError{
		SessionID: sessionID,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("session %s: %s", e.SessionID, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// TimeoutError is a run or milestone that exceeded its time budget.
type TimeoutError struct {
	Subject         string
	TimeoutDuration time.Duration
	Timestamp       time.Time
}

// NewTimeoutError creates a TimeoutError with the current timestamp.
func NewTimeoutError(subject string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		Subject:         subject,
		TimeoutDuration: duration,
		Timestamp:       time.Now(),
	}
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout after %v", e.Subject, e.TimeoutDuration)
}

// Unwrap returns context.DeadlineExceeded so errors.Is matches deadline
// checks.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsMilestoneError reports whether err is or wraps a MilestoneError.
func IsMilestoneError(err error) bool {
	var me *MilestoneError
	return errors.As(err, &me)
}

// IsSessionError reports whether err is or wraps a SessionError.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

// IsTimeoutError reports whether err is or wraps a TimeoutError or
// context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
