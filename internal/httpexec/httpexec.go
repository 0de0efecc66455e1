// Package httpexec provides the default Executor used by mine.Client: a thin
// wrapper around *http.Client that validates the response status, optionally
// throttles outbound QPS with a golang.org/x/time/rate.Limiter, and returns
// the response headers alongside the body or the status error, so callers
// can inspect rate-limit headers whenever a response was received. Network
// and body-read errors carry no headers.
package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"golang.org/x/time/rate"
)

// Request describes a single HTTP call to execute.
type Request struct {
	URL     string
	Method  string // defaults to GET
	Headers map[string]string
	Body    []byte
}

// Result is the successful outcome of an Execute call.
type Result struct {
	Data    json.RawMessage
	Headers http.Header
}

// TransportError is returned by Execute when a response was received but its
// status code was not in the expected set. It carries the response so the
// caller can still read rate-limit headers off a failed attempt.
type TransportError struct {
	Message string
	Status  int
	Headers http.Header
}

func (e *TransportError) Error() string {
	return e.Message
}

// Executor performs a single HTTP request and surfaces the result or error.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

type executor struct {
	client              *http.Client
	limiter             *rate.Limiter
	expectedStatusCodes []int
}

// Option configures an Executor built with New.
type Option func(*executor)

// WithClient overrides the underlying *http.Client. Defaults to
// http.DefaultClient if not set or nil.
func WithClient(client *http.Client) Option {
	return func(e *executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithRateLimiter attaches a limiter that is waited on before every attempt,
// in addition to (not instead of) the Client's header-driven pause/resume.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(e *executor) {
		e.limiter = limiter
	}
}

// WithExpectedStatusCodes overrides the set of status codes considered
// successful. Defaults to []int{http.StatusOK}.
func WithExpectedStatusCodes(codes ...int) Option {
	return func(e *executor) {
		if len(codes) > 0 {
			e.expectedStatusCodes = codes
		}
	}
}

// New constructs the default Executor.
func New(opts ...Option) Executor {
	e := &executor{
		client:              http.DefaultClient,
		expectedStatusCodes: []int{http.StatusOK},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *executor) Execute(ctx context.Context, req Request) (Result, error) {
	if req.URL == "" {
		return Result{}, errors.New("httpexec: empty request url")
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Result{}, fmt.Errorf("httpexec: build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("httpexec: rate limiter wait failed: %w", err)
		}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	if !slices.Contains(e.expectedStatusCodes, resp.StatusCode) {
		return Result{}, &TransportError{
			Message: fmt.Sprintf("httpexec: expected status code(s) %+v but got %d. body: %s",
				e.expectedStatusCodes, resp.StatusCode, string(respBody)),
			Status:  resp.StatusCode,
			Headers: resp.Header,
		}
	}

	return Result{Data: respBody, Headers: resp.Header}, nil
}
