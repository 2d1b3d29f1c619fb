package commerce

import (
	"errors"
	"fmt"
)

// NetworkError is a transport failure: the request may or may not have
// reached the backend. Timeouts land here.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "commerce: network error"
	}
	return fmt.Sprintf("commerce %s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError is a response the backend did send but that was unusable:
// a non-2xx status or an undecodable body.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "commerce: protocol error"
	}
	switch {
	case e.Err != nil:
		return fmt.Sprintf("commerce %s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Body != "":
		return fmt.Sprintf("commerce %s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("commerce %s: status=%d", e.Op, e.StatusCode)
	}
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
