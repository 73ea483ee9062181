package crawler

import "errors"

var (
	// ErrValidation marks malformed submissions or job messages.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a job status change would move backwards.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrAuthentication means the browser session could not log in.
	// It is session-scoped and never retried per job.
	ErrAuthentication = errors.New("browser authentication failed")
	// ErrChallenge means the site redirected to a verification checkpoint.
	ErrChallenge = errors.New("verification challenge detected")
	// ErrInvalidSourceURL means the profile reference could not be parsed.
	ErrInvalidSourceURL = errors.New("invalid source url")
	// ErrMarkerNotFound means the profile marker never rendered.
	ErrMarkerNotFound = errors.New("profile marker not found")
)

// Permanent reports whether err should stop a retry chain immediately.
func Permanent(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrChallenge) ||
		errors.Is(err, ErrInvalidSourceURL) ||
		errors.Is(err, ErrValidation)
}
