package encapsia

import (
	"encoding/json"
	"fmt"
)

// APIError is returned when the server answers with an unexpected HTTP
// status, or when a 2xx reply carries a non-ok envelope status.
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Status is the HTTP status text.
	Status string

	// Body is the (possibly truncated) response body.
	Body string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// KeyNotFoundError is returned by GetConfig when the server reports that the
// key does not exist. Any other failure (network, authorization, server
// error) keeps its own type so callers can tell the cases apart.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("no configuration value for key %q", e.Key)
}

// TaskFailedError is returned when a task, job, or dbctl action finishes in
// the failed state. Payload carries the server's result object.
type TaskFailedError struct {
	// What names the failed operation kind ("task", "job", "dbctl action").
	What string

	// Payload is the raw result object reported by the server.
	Payload json.RawMessage
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.What, string(e.Payload))
}

// PollTimeoutError is returned when polling for a task or job result
// exhausts its try budget before the server produces one.
type PollTimeoutError struct {
	Waited string
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("no result after %s", e.Waited)
}
