// Package services holds the gateway's use cases: relaying allowlisted CTFd
// reads and announcing first-blood events. Errors are sentinels checked with
// errors.Is; mapping them to HTTP status codes is the handlers' job.
package services

import "errors"

var (
	// ErrEndpointNotAllowed indicates the path is not allowlisted, or names a
	// user that has not been seen as a team member.
	ErrEndpointNotAllowed = errors.New("endpoint not allowed")

	// ErrUpstreamUnavailable indicates CTFd could not be reached or returned
	// an unusable body.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidPayload is returned when a webhook body is not a JSON object
	// of the expected shape.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrMissingSubmissionID is returned when a webhook payload has no id.
	ErrMissingSubmissionID = errors.New("missing submission id")

	// ErrSubmissionUnavailable indicates the submission named by a webhook
	// could not be fetched, so there is nothing to announce.
	ErrSubmissionUnavailable = errors.New("submission unavailable")
)
