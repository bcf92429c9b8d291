package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is the HTTP transport shared by every service talking HTTP.
//
// Services never build their own *http.Client: they fetch the current client
// from Info.HTTPClient() for every request. Swapping the client through
// Info.UpdateHTTPClient (to inject a proxy or a test double) only affects
// requests started after the swap; requests already holding the previous
// client complete on it.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a client on http.DefaultTransport.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Transport: http.DefaultTransport,
		},
	}
}

// HTTPClientWith wraps an existing *http.Client.
func HTTPClientWith(client *http.Client) *HTTPClient {
	if client == nil {
		return NewHTTPClient()
	}
	return &HTTPClient{client: client}
}

// Client returns the underlying *http.Client.
func (c *HTTPClient) Client() *http.Client {
	return c.client
}

// Send performs the request and buffers the full response body.
//
// The returned response body has already been drained and replaced by an
// in-memory reader, so callers may read it without closing it.
func (c *HTTPClient) Send(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.Fetch(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, NewError(KindUnexpected, "read response body failed").
			WithOperation("http.send").
			WithContext("url", req.URL.String()).
			WithSource(err).
			SetTemporary()
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, body, nil
}

// Fetch performs the request and returns the response with a streaming body.
// The caller owns resp.Body.
//
// Transport failures are temporary: the request never reached a definite
// outcome on the server.
func (c *HTTPClient) Fetch(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		e := NewError(KindUnexpected, "send http request failed").
			WithOperation("http.send").
			WithContext("url", req.URL.String()).
			WithSource(err)
		if ctxErr := req.Context().Err(); ctxErr == nil {
			e.SetTemporary()
		}
		return nil, e
	}
	return resp, nil
}

// NewRequest builds a request bound to ctx.
func NewRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, NewError(KindUnexpected, "build http request failed").WithSource(err)
	}
	return req, nil
}

// ParseHTTPDate parses Last-Modified style headers.
func ParseHTTPDate(value string) (time.Time, error) {
	t, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, Errorf(KindUnexpected, "invalid http date %q", value).WithSource(err)
	}
	return t, nil
}

// KindFromHTTPStatus maps a status code to an error kind. It is the default
// mapping for services with conventional HTTP error semantics.
func KindFromHTTPStatus(status int) (ErrorKind, bool) {
	switch status {
	case http.StatusNotFound:
		return KindNotFound, false
	case http.StatusForbidden, http.StatusUnauthorized:
		return KindPermissionDenied, false
	case http.StatusPreconditionFailed, http.StatusNotModified:
		return KindConditionNotMatch, false
	case http.StatusRequestedRangeNotSatisfiable:
		return KindRangeNotSatisfied, false
	case http.StatusConflict:
		return KindAlreadyExists, false
	case http.StatusTooManyRequests:
		return KindRateLimited, true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnexpected, true
	default:
		return KindUnexpected, false
	}
}

// HTTPStatusError builds an *Error from a non-success response.
func HTTPStatusError(resp *http.Response, body []byte) *Error {
	kind, temporary := KindFromHTTPStatus(resp.StatusCode)
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = resp.Status
	}
	e := NewError(kind, msg).WithContext("status", fmt.Sprintf("%d", resp.StatusCode))
	if temporary {
		e.SetTemporary()
	}
	return e
}
