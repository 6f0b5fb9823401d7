package transport

import (
	"fmt"
)

// TransportError covers network failures, timeouts and non-2xx replies.
// StatusCode is zero when no response was received.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CheckStatus turns a non-2xx response into a *TransportError.
func CheckStatus(req Request, resp *Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	return &TransportError{
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: resp.Status,
		Body:       resp.Body,
	}
}
