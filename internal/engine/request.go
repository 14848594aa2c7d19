// internal/engine/request.go
package engine

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// Request is one in-flight request inside the engine. Its mutable state is
// confined to the engine's processing loop; only the identifying fields may
// be read from elsewhere.
type Request struct {
	ID       string
	Method   string
	URL      *url.URL
	Referrer string

	deliver   func(*Response, error)
	delivered bool // processing-loop confined
}

// NewRequest builds a request with a fresh ID. The deliver callback receives
// the final response (or error) exactly once, on the processing loop.
func NewRequest(method string, u *url.URL, referrer string, deliver func(*Response, error)) *Request {
	return &Request{
		ID:       uuid.NewString(),
		Method:   method,
		URL:      u,
		Referrer: referrer,
		deliver:  deliver,
	}
}

// Scheme returns the request URL's scheme.
func (r *Request) Scheme() string {
	return r.URL.Scheme
}

// Deliver completes the request. Must be called on the processing loop.
// Delivering twice is a contract violation by the job that owns the request.
func (r *Request) Deliver(resp *Response, err error) {
	if r.delivered {
		panic(fmt.Sprintf("engine: request %s delivered twice", r.ID))
	}
	r.delivered = true
	r.deliver(resp, err)
}

// Response is the final answer for one request. Charset is set by text
// responses, Encoding by binary ones; the two never overlap.
type Response struct {
	MimeType string
	Charset  string
	Encoding string
	Data     []byte
}
