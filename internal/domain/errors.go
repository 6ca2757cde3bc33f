package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRepository is returned when a scan request has no repoUrl
	ErrMissingRepository = errors.New("repoUrl required")

	// ErrInvalidRepoURL is returned when a repoUrl does not match the
	// host/owner/repo pattern
	ErrInvalidRepoURL = errors.New("invalid GitHub URL")

	// ErrMalformedResponse is returned when the generative collaborator's
	// output cannot be parsed into an edit list
	ErrMalformedResponse = errors.New("malformed generation response")

	// ErrGenerationUnavailable is returned when no model credential is configured
	ErrGenerationUnavailable = errors.New("generation unavailable: no API key configured")

	// ErrNotFound is returned for unknown patch or proposal ids
	ErrNotFound = errors.New("not found")

	// ErrNotPending is returned when approving a proposal that is not pending
	ErrNotPending = errors.New("proposal not pending")

	// ErrPublishingDisabled is returned when a direct-publish request arrives
	// while automatic pull request creation is turned off
	ErrPublishingDisabled = errors.New("automatic PR creation is disabled")

	// ErrNotSigned is returned when requesting a certificate for an unsigned patch
	ErrNotSigned = errors.New("patch not signed")

	// ErrAdminUnauthorized is returned when the admin key is missing or wrong
	ErrAdminUnauthorized = errors.New("admin key missing or invalid")
)

// QuotaError signals that the generative collaborator is quota-exhausted.
// RetryAfter is a hint in seconds; it is surfaced as data, never retried
// internally.
type QuotaError struct {
	RetryAfter int
	Cause      error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded (retry after %ds): %v", e.RetryAfter, e.Cause)
}

func (e *QuotaError) Unwrap() error { return e.Cause }

// HostAPIError preserves the hosting API's status and body for the caller.
// Host failures are not retried automatically.
type HostAPIError struct {
	Op     string
	Status int
	Body   string
}

func (e *HostAPIError) Error() string {
	return fmt.Sprintf("%s: github api returned %d: %s", e.Op, e.Status, e.Body)
}
