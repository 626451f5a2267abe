package api

import (
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// RequestIDHeader correlates a client request with backend logs.
const RequestIDHeader = "X-Request-ID"

// requestIDTransport stamps every outgoing request with a fresh request ID.
type requestIDTransport struct {
	base http.RoundTripper
}

func (t requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(RequestIDHeader, uuid.NewString())
	return t.base.RoundTrip(clone)
}

// NewHTTPClient returns a client that attaches the bearer token from tokens and a request ID
// to every call. It sets no overall timeout: ordinary calls are bounded per request by context,
// and the progress stream must stay open as long as the server keeps it open.
func NewHTTPClient(tokens oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: tokens,
			Base:   requestIDTransport{base: http.DefaultTransport},
		},
	}
}
