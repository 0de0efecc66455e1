package mine

import (
	"context"
	"sync"
	"time"

	"ghminer/internal/clock"
	"ghminer/internal/logging"
)

const (
	defaultMaxPerRequest = 5
	idleWait             = time.Second
)

// Queue owns a fixed set of Clients and a shared backlog of Requests. Start
// drives a dispatch loop that pairs free, authorized Clients with backlog
// Requests, invokes them in parallel, and applies retry / per-URL-abandon /
// global-failure-budget policy on completion.
//
// The backlog is a single LIFO stack: Push appends Requests in the order
// given (so the last Request of a Push is dispatched first); Unshift gives
// its Requests dispatch priority over whatever is already queued while
// preserving their relative order (so the first Request of an Unshift is
// dispatched first among the set just inserted).
type Queue struct {
	clients       []*Client
	maxPerRequest int
	maxTotal      int
	logger        logging.Logger
	clock         clock.Clock

	mu          sync.Mutex
	backlog     []*Request
	stopped     bool
	running     bool
	errorCount  int
	errorsByUrl map[string]int
	wake        chan struct{}
}

// QueueOption configures a Queue constructed with NewQueue.
type QueueOption func(*Queue)

// WithMaxPerRequest overrides the default per-URL retry budget of 5.
func WithMaxPerRequest(n int) QueueOption {
	return func(q *Queue) { q.maxPerRequest = n }
}

// WithMaxTotal overrides the default global failure ceiling of
// maxPerRequest*1000.
func WithMaxTotal(n int) QueueOption {
	return func(q *Queue) { q.maxTotal = n }
}

// WithQueueLogger overrides the default no-op logger.
func WithQueueLogger(l logging.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithQueueClock overrides the default real clock. Used by tests.
func WithQueueClock(cl clock.Clock) QueueOption {
	return func(q *Queue) { q.clock = cl }
}

// NewQueue constructs a Queue over a fixed set of Clients.
func NewQueue(clients []*Client, opts ...QueueOption) *Queue {
	q := &Queue{
		clients:       append([]*Client(nil), clients...),
		maxPerRequest: defaultMaxPerRequest,
		logger:        logging.Noop(),
		clock:         clock.Real,
		errorsByUrl:   make(map[string]int),
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.maxTotal == 0 {
		q.maxTotal = q.maxPerRequest * 1000
	}

	for _, c := range q.clients {
		c.setOnStateChange(q.signal)
	}

	return q
}

// GetClients returns the fixed client set this Queue was constructed with.
func (q *Queue) GetClients() []*Client {
	return append([]*Client(nil), q.clients...)
}

// GetQueueLength returns the current backlog size.
func (q *Queue) GetQueueLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// GetRequestFailCount returns the number of distinct URLs whose attempt
// count has reached maxPerRequest (i.e. have been abandoned).
func (q *Queue) GetRequestFailCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, n := range q.errorsByUrl {
		if n >= q.maxPerRequest {
			count++
		}
	}
	return count
}

// Push appends requests to the backlog. The last request given is the next
// one dispatched (LIFO).
func (q *Queue) Push(reqs ...*Request) {
	if len(reqs) == 0 {
		return
	}
	q.mu.Lock()
	q.backlog = append(q.backlog, reqs...)
	q.mu.Unlock()
	q.signal()
}

// Unshift inserts requests ahead of everything currently queued, preserving
// their relative order: the first request given is dispatched first among
// the set just inserted.
func (q *Queue) Unshift(reqs ...*Request) {
	if len(reqs) == 0 {
		return
	}
	q.mu.Lock()
	for i := len(reqs) - 1; i >= 0; i-- {
		q.backlog = append(q.backlog, reqs[i])
	}
	q.mu.Unlock()
	q.signal()
}

// Stop requests the dispatch loop to exit at its next tick. It does not
// cancel in-flight requests.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.logger.Info("queue stop requested")
	q.signal()
}

// Start begins the dispatch loop if one is not already running. It is
// idempotent: calling Start while a loop is active is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopped = false
	q.mu.Unlock()

	q.logger.Info("queue start")
	go q.dispatchLoop(ctx)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatchLoop(ctx context.Context) {
	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			q.logger.Info("queue stopped")
			return
		}
		if q.errorCount >= q.maxTotal {
			q.mu.Unlock()
			q.logger.Error("queue global error budget exceeded", "errorCount", q.errorCount, "maxTotal", q.maxTotal)
			return
		}

		if len(q.backlog) == 0 {
			q.mu.Unlock()
			if !q.wait(ctx) {
				return
			}
			continue
		}

		for _, c := range q.clients {
			if len(q.backlog) == 0 {
				break
			}
			if !c.tryReserve() {
				continue
			}
			req := q.popTailLocked()
			go q.dispatch(ctx, c, req)
		}
		q.mu.Unlock()

		if !q.wait(ctx) {
			return
		}
	}
}

// wait blocks until woken by a state change, the idle-wait fallback elapses,
// or ctx is cancelled. It returns false if the loop should exit.
func (q *Queue) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-q.wake:
		return true
	case <-q.clock.AfterChan(idleWait):
		return true
	}
}

// popTailLocked removes and returns the last (most recently inserted)
// backlog entry. Must be called with q.mu held.
func (q *Queue) popTailLocked() *Request {
	n := len(q.backlog)
	req := q.backlog[n-1]
	q.backlog = q.backlog[:n-1]
	return req
}

func (q *Queue) dispatch(ctx context.Context, c *Client, req *Request) {
	q.logger.Info("client query url", "token", c.GetToken(), "url", req.URL())

	result, err := c.Request(ctx, req.URL(), req.Params())
	if err == nil {
		q.runCallbackSafely(req, result)
		q.signal()
		return
	}

	q.mu.Lock()
	q.errorCount++
	q.errorsByUrl[req.URL()]++
	attempts := q.errorsByUrl[req.URL()]
	if attempts < q.maxPerRequest {
		q.backlog = append(q.backlog, req)
		q.mu.Unlock()
		q.logger.Warn("request retry", "url", req.URL(), "attempt", attempts, "err", err.Error())
	} else {
		q.mu.Unlock()
		q.logger.Error("request abandoned", "url", req.URL(), "attempts", attempts, "err", err.Error())
	}

	q.signal()
}

// runCallbackSafely isolates user callback panics so they cannot corrupt
// scheduler state or crash the dispatch loop.
func (q *Queue) runCallbackSafely(req *Request, result Result) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("request callback panicked", "url", req.URL(), "panic", r)
		}
	}()
	req.RunCallback(result)
}
