package core

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Service selects which backend base URL a request targets.
type Service int

const (
	ServiceAPI Service = iota
	ServiceAnalytics
)

// Request is a transport-neutral backend call. Body is already encoded so that
// a replay sends identical bytes.
type Request struct {
	Service        Service
	Method         string
	Path           string
	Query          url.Values
	Body           []byte
	Bearer         string
	IdempotencyKey string
}

// NewRequest encodes body as JSON when it is not nil.
func NewRequest(method, path string, body any) (Request, error) {
	req := Request{Method: method, Path: path}
	if body == nil {
		return req, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Request{}, err
	}
	req.Body = raw
	return req, nil
}

// Mutating reports whether the request can change backend state.
func (r Request) Mutating() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// Response is a successful backend reply.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the response body into dst.
func (r *Response) Decode(dst any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, dst)
}
