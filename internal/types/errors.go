package types

import (
	"errors"
	"fmt"
)

// Sentinel errors — callers use errors.Is() instead of string matching.
var (
	ErrInputTooLarge      = errors.New("input text too large")
	ErrEmptyTranscript    = errors.New("provider returned empty transcript")
	ErrRecordingNotFound  = errors.New("recording not found")
	ErrMissingParams      = errors.New("missing storage_path or recording_id")
	ErrInvalidPath        = errors.New("storage_path must start with the recordings bucket")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrMissingIdempotency = errors.New("Idempotency-Key header is required")
)

// ValidationError is bad or missing caller input: 4xx, no side effects.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidation(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// NotFoundError marks a referenced entity absent or not owned by the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// UpstreamError wraps a provider failure, keeping the upstream status and
// body for surfacing and for metrics.
type UpstreamError struct {
	Service string
	Status  int
	Body    string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed: %d %s", e.Service, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UnsupportedFormatError is a transcription 400 classified as a format
// problem; it triggers the fallback transcode request and ends the run in
// error status.
type UnsupportedFormatError struct {
	Detail string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported format: " + e.Detail
}
