package signaling

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport matches every *TransportError with errors.Is.
var ErrTransport = errors.New("signaling transport error")

// TransportError is returned when a request to the room store fails: the
// request could not be sent, the status was not 2xx, or the body was not
// JSON. Poll loops treat it as retryable.
type TransportError struct {
	Method string
	Path   string
	// Status is 0 when no response was received.
	Status int
	// Message is the server's "error" field or a raw body excerpt.
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("signaling: %s %s: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("signaling: %s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
	default:
		return fmt.Sprintf("signaling: %s %s: unexpected status %d", e.Method, e.Path, e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsConflict reports whether err is the store refusing a write to a room
// without an offer.
func IsConflict(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status == http.StatusConflict
}
