package integration

import (
	"errors"
)

// ---------------------------------------------------------------------------
// Sync error taxonomy
// ---------------------------------------------------------------------------

var (
	// Per-record errors. The engine logs them and moves on to the next record.
	ErrValidation     = errors.New("integration: validation failed")
	ErrAmbiguousMatch = errors.New("integration: ambiguous natural key match")
	ErrRemoteNotFound = errors.New("integration: remote record not found")
	ErrRecordNotFound = errors.New("integration: local record not found")

	// ErrNoMatch is returned by matchers when no record on the other side
	// corresponds to the given one. It is an outcome, not a failure.
	ErrNoMatch = errors.New("integration: no matching record")

	// Transient remote error, retried inside the remote client.
	ErrRemoteRateLimited = errors.New("integration: remote rate limited")

	// Systemic errors. They abort the running batch.
	ErrRemoteUnavailable = errors.New("integration: remote service unavailable")
	ErrAuthRejected      = errors.New("integration: remote rejected credentials")

	// Webhook errors
	ErrWebhookAuthenticity      = errors.New("integration: webhook authenticity check failed")
	ErrUnknownWebhookTopic      = errors.New("integration: unknown webhook topic")
	ErrWebhookEventNotFound     = errors.New("integration: webhook event not found")
	ErrInvalidWebhookTransition = errors.New("integration: invalid webhook event transition")

	// Instance errors
	ErrInstanceNotFound          = errors.New("integration: sync instance not found")
	ErrInstanceAlreadyExists     = errors.New("integration: an instance for this shop already exists")
	ErrInstanceNameRequired      = errors.New("integration: instance name is required")
	ErrInstanceInvalidShopURL    = errors.New("integration: invalid shop URL")
	ErrInstanceMissingToken      = errors.New("integration: access token is required")
	ErrInstanceInvalidAPIVersion = errors.New("integration: API version must look like YYYY-MM")
	ErrInstanceInvalidLocation   = errors.New("integration: location IDs must be numeric")
	ErrInstanceAuthRejected      = errors.New("integration: instance credentials were rejected, rotate them before syncing")

	// Job errors
	ErrInvalidEntityType    = errors.New("integration: invalid entity type")
	ErrInvalidDirection     = errors.New("integration: invalid sync direction")
	ErrJobNotFound          = errors.New("integration: sync job not found")
	ErrJobNotCancellable    = errors.New("integration: sync job cannot be cancelled in its current status")
	ErrInvalidJobTransition = errors.New("integration: invalid sync job status transition")

	// Log and cross reference errors
	ErrLogEntryNotFound       = errors.New("integration: sync log entry not found")
	ErrLogEntryNotRetryable   = errors.New("integration: only errored or skipped log entries can be retried")
	ErrCrossReferenceNotFound = errors.New("integration: cross reference not found")
	ErrCrossReferenceConflict = errors.New("integration: record already cross-referenced to a different counterpart")
)

// Error codes written to sync log entries and API responses.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeAmbiguousMatch      = "AMBIGUOUS_MATCH"
	CodeRemoteRateLimited   = "REMOTE_RATE_LIMITED"
	CodeRemoteUnavailable   = "REMOTE_UNAVAILABLE"
	CodeAuthRejected        = "AUTH_REJECTED"
	CodeWebhookAuthenticity = "WEBHOOK_AUTHENTICITY_FAILED"
	CodeRemoteNotFound      = "REMOTE_NOT_FOUND"
	CodeRecordNotFound      = "RECORD_NOT_FOUND"
	CodeCrossReference      = "CROSS_REFERENCE_CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorCode maps an error to its taxonomy code. Systemic causes take
// precedence over the transient ones they may wrap.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRejected):
		return CodeAuthRejected
	case errors.Is(err, ErrRemoteUnavailable):
		return CodeRemoteUnavailable
	case errors.Is(err, ErrRemoteRateLimited):
		return CodeRemoteRateLimited
	case errors.Is(err, ErrWebhookAuthenticity):
		return CodeWebhookAuthenticity
	case errors.Is(err, ErrAmbiguousMatch):
		return CodeAmbiguousMatch
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrRemoteNotFound):
		return CodeRemoteNotFound
	case errors.Is(err, ErrRecordNotFound):
		return CodeRecordNotFound
	case errors.Is(err, ErrCrossReferenceConflict):
		return CodeCrossReference
	default:
		return CodeInternal
	}
}

// IsSystemic reports whether err must abort the whole batch instead of
// only the current record.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrAuthRejected)
}

// IsRetryable reports whether a job that failed with err should be picked
// up again by the next scheduled run. Rejected credentials need an operator.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) && !errors.Is(err, ErrAuthRejected)
}
