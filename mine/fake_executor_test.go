package mine_test

import (
	"context"
	"net/http"
	"sync/atomic"

	"ghminer/internal/httpexec"
)

// fakeExecutor is a scripted httpexec.Executor for deterministic tests. Each
// call to Execute pops the next scripted response; the last scripted
// response repeats once exhausted.
type fakeExecutor struct {
	responses []scriptedResponse
	calls     int32
}

type scriptedResponse struct {
	result httpexec.Result
	err    error
}

func newFakeExecutor(responses ...scriptedResponse) *fakeExecutor {
	return &fakeExecutor{responses: responses}
}

func (f *fakeExecutor) Execute(ctx context.Context, req httpexec.Request) (httpexec.Result, error) {
	n := atomic.AddInt32(&f.calls, 1) - 1
	idx := int(n)
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	resp := f.responses[idx]
	return resp.result, resp.err
}

func (f *fakeExecutor) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func headers(kv ...string) http.Header {
	h := make(http.Header)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}
