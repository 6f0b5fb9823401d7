// Package transport describes a single request/response exchange with the
// search cluster. Implementations own endpoints, auth and pooling; callers
// only see Request, Response and Transport.
package transport

import (
	"context"
	"net/http"
	"net/url"
)

const ContentTypeJSON = "application/json"

// Request is immutable once built with NewRequest. Path must already be
// escaped.
type Request struct {
	Method      string
	Path        string
	Params      map[string]string
	Body        []byte
	ContentType string
}

func NewRequest(method, path string, params map[string]string, body []byte, contentType string) Request {
	var p map[string]string
	if len(params) > 0 {
		p = make(map[string]string, len(params))
		for k, v := range params {
			p[k] = v
		}
	}
	var b []byte
	if body != nil {
		b = append(make([]byte, 0, len(body)), body...)
	}
	return Request{
		Method:      method,
		Path:        path,
		Params:      p,
		Body:        b,
		ContentType: contentType,
	}
}

// URL returns the already-escaped path with the encoded query string,
// relative to the cluster address.
func (r Request) URL() string {
	if len(r.Params) == 0 {
		return r.Path
	}
	q := url.Values{}
	for k, v := range r.Params {
		q.Set(k, v)
	}
	return r.Path + "?" + q.Encode()
}

type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// Callback receives exactly one of a response or an error.
type Callback func(resp *Response, err error)

type Transport interface {
	// SendSync blocks until the exchange finishes. Non-2xx statuses are
	// reported as *TransportError.
	SendSync(ctx context.Context, req Request) (*Response, error)

	// SendAsync returns immediately and invokes done exactly once from
	// another goroutine. Pending callbacks are lost if the process exits.
	SendAsync(ctx context.Context, req Request, done Callback)
}
