package detect

import "fmt"

// TransportError is any failure to obtain a usable response from the
// inference collaborator: network error, timeout, non-success status, or an
// undecodable payload.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("detect %s: collaborator returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("detect %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
