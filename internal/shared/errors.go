package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrValidation         = fmt.Errorf("invalid options")

	// Remote API errors. Transient failures (network, 5xx, 429) are safe for
	// the caller to retry; permanent failures (other 4xx) are not.
	ErrTransientRemote  = fmt.Errorf("transient remote failure")
	ErrPermanentRemote  = fmt.Errorf("permanent remote failure")
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Execution errors
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrWorkerFault   = fmt.Errorf("worker terminated")
	ErrPipelineAbort = fmt.Errorf("pipeline aborted")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ClassifyStatus maps an HTTP status code from the remote API onto the error
// taxonomy. 429 and 5xx wrap [ErrTransientRemote], remaining 4xx wrap
// [ErrPermanentRemote], success statuses return nil.
func ClassifyStatus(status int) error {
	switch {
	case status == 429 || status >= 500:
		return fmt.Errorf("%w: status %d", ErrTransientRemote, status)
	case status >= 400:
		return fmt.Errorf("%w: status %d", ErrPermanentRemote, status)
	default:
		return nil
	}
}
