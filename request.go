package blip

import (
	"fmt"

	"github.com/casualjim/blip/events"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Request is an outbound request document for one service operation. Like
// the event formatter, the first error sticks and later setters are no-ops.
type Request struct {
	service   string
	operation events.Name
	doc       string
	err       error
}

func newRequest(service string, operation events.Name) *Request {
	return &Request{service: service, operation: operation, doc: "{}"}
}

func (r *Request) Service() string {
	return r.service
}

func (r *Request) Operation() events.Name {
	return r.operation
}

// Set sets the element at path.
func (r *Request) Set(path string, value any) *Request {
	if r.err != nil {
		return r
	}
	doc, err := sjson.Set(r.doc, path, value)
	if err != nil {
		r.err = fmt.Errorf("request: set %s: %w", path, err)
		return r
	}
	r.doc = doc
	return r
}

// Append adds value to the array at path, creating it if needed.
func (r *Request) Append(path string, values ...any) *Request {
	for _, v := range values {
		if !gjson.Get(r.doc, path).IsArray() {
			r.Set(path, []any{v})
			continue
		}
		r.Set(path+".-1", v)
	}
	return r
}

func (r *Request) Get(path string) gjson.Result {
	return gjson.Get(r.doc, path)
}

func (r *Request) Err() error {
	return r.err
}

func (r *Request) String() string {
	return r.doc
}
