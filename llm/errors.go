package llm

import "fmt"

// RemoteServiceError reports a failed call to a completion provider:
// unreachable endpoint, rejected request (auth, rate limit, malformed
// input), timeout, or an empty/malformed response.
//
// The library never retries; StatusCode and Message carry enough detail
// for the caller to decide whether to. Match with errors.As.
type RemoteServiceError struct {
	// Provider is the provider name ("openai", "anthropic", ...).
	Provider string
	// StatusCode is the HTTP status, or 0 when none is available.
	StatusCode int
	// Message is a short description of the failure.
	Message string
	// Err is the underlying SDK error, if any.
	Err error
}

// Error returns the error message.
func (e *RemoteServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s request failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm: %s request failed: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying SDK error.
func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

func remoteErr(provider string, statusCode int, message string, err error) error {
	return &RemoteServiceError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}
