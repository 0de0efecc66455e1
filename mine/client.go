package mine

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ghminer/internal/clock"
	"ghminer/internal/httpexec"
	"ghminer/internal/logging"
)

const (
	defaultSafetyMargin = 5
	defaultResumeBuffer = 2 * time.Second
)

// Client is a per-credential rate-limit-aware state machine. It tracks the
// remaining-requests/reset-time the transport reports and auto-pauses itself
// when the remaining quota falls within its safety margin, resuming itself on
// a single scheduled timer.
type Client struct {
	token        string
	safetyMargin int
	resumeBuffer time.Duration

	executor httpexec.Executor
	logger   logging.Logger
	clock    clock.Clock

	mu                sync.Mutex
	authorized        bool
	busy              bool
	remainingRequests int
	resetAt           time.Time
	resumeTimer       clock.Timer

	// onStateChange, if set, is invoked after any state transition that a
	// scheduler might care about (authorized/busy flips). Used by Queue to
	// wake its dispatch loop without polling.
	onStateChange func()
}

// ClientOption configures a Client constructed with NewClient.
type ClientOption func(*Client)

// WithSafetyMargin overrides the default safety margin of 5.
func WithSafetyMargin(n int) ClientOption {
	return func(c *Client) { c.safetyMargin = n }
}

// WithResumeBuffer overrides the default resume buffer of 2s.
func WithResumeBuffer(d time.Duration) ClientOption {
	return func(c *Client) { c.resumeBuffer = d }
}

// WithExecutor overrides the default httpexec.New() executor. Primarily used
// by tests to inject a fake transport.
func WithExecutor(e httpexec.Executor) ClientOption {
	return func(c *Client) { c.executor = e }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the default real clock. Used by tests.
func WithClock(cl clock.Clock) ClientOption {
	return func(c *Client) { c.clock = cl }
}

// NewClient constructs a Client for token, starting authorized and idle.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:        token,
		safetyMargin: defaultSafetyMargin,
		resumeBuffer: defaultResumeBuffer,
		executor:     httpexec.New(),
		logger:       logging.Noop(),
		clock:        clock.Real,
		authorized:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetToken returns only the last 5 characters of the credential, matching the
// spec's logging-observability constraint.
func (c *Client) GetToken() string {
	return lastN(c.token, 5)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// IsAuthorized reports whether this Client currently believes it has quota.
func (c *Client) IsAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized
}

// IsBusy reports whether this Client has an in-flight request.
func (c *Client) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// tryReserve atomically claims this Client for dispatch: if it is currently
// authorized and idle, it marks it busy and returns true; otherwise it
// leaves state untouched and returns false. Queue calls this synchronously,
// under its own lock, before handing a Request off to a dispatch goroutine,
// so that the authorized-and-idle check and the busy flip happen as one
// atomic step — closing the window where two concurrent dispatch attempts
// could both observe the same Client as free.
func (c *Client) tryReserve() bool {
	c.mu.Lock()
	if !c.authorized || c.busy {
		c.mu.Unlock()
		return false
	}
	c.busy = true
	c.mu.Unlock()
	c.notifyStateChange()
	return true
}

// Request performs a single HTTP call with url and params, refreshing
// rate-limit state from the response headers on both success and failure.
// It never panics or returns a synchronous error distinct from the
// transport's own failure shape: the returned error (if any) is always the
// re-surfaced transport failure.
//
// Request marks the Client busy itself, so it is safe to call directly
// (outside of Queue dispatch) without a prior tryReserve. When called via
// Queue, tryReserve has already flipped busy to true synchronously; this
// assignment is then a harmless no-op rather than the point where busy
// first becomes true.
func (c *Client) Request(ctx context.Context, url string, params Params) (Result, error) {
	c.mu.Lock()
	c.busy = true
	c.mu.Unlock()
	c.notifyStateChange()

	c.logger.Info("client query", "token", c.GetToken(), "url", url)

	method := params.Method
	if method == "" {
		method = http.MethodGet
	}
	headers := map[string]string{
		"Authorization": "Bearer " + c.token,
		"Accept":        "application/vnd.github.v3+json",
	}
	for k, v := range params.Headers {
		headers[k] = v
	}

	res, execErr := c.executor.Execute(ctx, httpexec.Request{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    params.Body,
	})

	var respHeaders http.Header
	var status int
	if execErr != nil {
		if terr, ok := execErr.(*httpexec.TransportError); ok {
			respHeaders = terr.Headers
			status = terr.Status
		}
	} else {
		respHeaders = res.Headers
	}

	c.refreshRateLimit(respHeaders)

	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
	c.notifyStateChange()

	if execErr != nil && (status == http.StatusForbidden || status == http.StatusTooManyRequests) {
		c.mu.Lock()
		knownReset := c.resetAt
		c.mu.Unlock()

		if retryAfter := respHeaders.Get("retry-after"); retryAfter != "" {
			if secs, err := strconv.Atoi(retryAfter); err == nil {
				target := c.clock.Now().Add(time.Duration(secs) * time.Second)
				c.logger.Warn("client rate limit 403/429", "token", c.GetToken(), "pauseUntil", target)
				c.Pause(target)
			}
		} else if !knownReset.IsZero() {
			c.logger.Warn("client rate limit 403/429", "token", c.GetToken(), "pauseUntil", knownReset)
			c.Pause(knownReset)
		}
	}

	if execErr != nil {
		return Result{}, execErr
	}
	return Result{Data: res.Data, Headers: map[string][]string(res.Headers)}, nil
}

// refreshRateLimit parses x-ratelimit-remaining/x-ratelimit-reset and pauses
// the Client if the remaining quota is within the safety margin. If either
// header is absent it only logs a warning; it never auto-pauses on missing
// headers (the newer of the two upstream behaviors).
func (c *Client) refreshRateLimit(headers http.Header) {
	if headers == nil {
		return
	}

	remainingStr := headers.Get("x-ratelimit-remaining")
	resetStr := headers.Get("x-ratelimit-reset")
	if remainingStr == "" || resetStr == "" {
		c.logger.Warn("client rate limit headers missing", "token", c.GetToken())
		return
	}

	remaining, err1 := strconv.Atoi(remainingStr)
	resetSecs, err2 := strconv.ParseInt(resetStr, 10, 64)
	if err1 != nil || err2 != nil {
		c.logger.Warn("client rate limit headers unparsable", "token", c.GetToken())
		return
	}

	resetAt := time.Unix(resetSecs, 0)

	c.mu.Lock()
	c.remainingRequests = remaining
	c.resetAt = resetAt
	c.mu.Unlock()

	c.logger.Info("client rate limit snapshot", "token", c.GetToken(), "remaining", remaining, "resetAt", resetAt)

	if remaining-c.safetyMargin <= 0 {
		c.Pause(resetAt)
	}
}

// Pause marks the Client unauthorized until resetAt plus its resume buffer
// has elapsed, cancelling any previously pending resume timer. If the
// effective delay has already passed, the Client resumes immediately.
func (c *Client) Pause(resetAt time.Time) {
	c.mu.Lock()
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}

	delay := resetAt.Sub(c.clock.Now()) + c.resumeBuffer

	if delay <= 0 {
		c.authorized = true
		c.mu.Unlock()
		c.notifyStateChange()
		return
	}

	c.authorized = false
	c.mu.Unlock()

	c.logger.Warn("client paused", "token", c.GetToken(), "resetAt", resetAt, "resumeIn", delay.String())

	timer := c.clock.AfterFunc(delay, c.resume)

	c.mu.Lock()
	c.resumeTimer = timer
	c.mu.Unlock()

	c.notifyStateChange()
}

func (c *Client) resume() {
	c.mu.Lock()
	c.authorized = true
	c.resumeTimer = nil
	c.mu.Unlock()

	c.logger.Info("client resumed", "token", c.GetToken())
	c.notifyStateChange()
}

func (c *Client) notifyStateChange() {
	c.mu.Lock()
	f := c.onStateChange
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func (c *Client) setOnStateChange(f func()) {
	c.mu.Lock()
	c.onStateChange = f
	c.mu.Unlock()
}
