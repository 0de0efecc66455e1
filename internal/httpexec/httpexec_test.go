package httpexec_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"ghminer/internal/httpexec"
)

func TestExecutor_Execute_Success(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
	}{
		{name: "200 OK returns data and headers", statusCode: http.StatusOK, body: `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("x-ratelimit-remaining", "10")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			exec := httpexec.New(httpexec.WithClient(srv.Client()))
			res, err := exec.Execute(context.Background(), httpexec.Request{URL: srv.URL})
			require.NoError(t, err)
			require.JSONEq(t, tt.body, string(res.Data))
			require.Equal(t, "10", res.Headers.Get("x-ratelimit-remaining"))
		})
	}
}

func TestExecutor_Execute_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	}))
	t.Cleanup(srv.Close)

	exec := httpexec.New(httpexec.WithClient(srv.Client()))
	_, err := exec.Execute(context.Background(), httpexec.Request{URL: srv.URL})
	require.Error(t, err)

	var terr *httpexec.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, http.StatusForbidden, terr.Status)
	require.Contains(t, terr.Message, "rate limited")
}

func TestExecutor_Execute_ExpectedStatusCodesOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	exec := httpexec.New(httpexec.WithClient(srv.Client()), httpexec.WithExpectedStatusCodes(http.StatusCreated))
	_, err := exec.Execute(context.Background(), httpexec.Request{URL: srv.URL})
	require.NoError(t, err)
}

func TestExecutor_Execute_EmptyURL(t *testing.T) {
	exec := httpexec.New()
	_, err := exec.Execute(context.Background(), httpexec.Request{})
	require.Error(t, err)
}

func TestExecutor_Execute_RateLimiterWaitFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("server should not be called when rate limiter wait fails")
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := httpexec.New(
		httpexec.WithClient(srv.Client()),
		httpexec.WithRateLimiter(rate.NewLimiter(rate.Every(time.Second), 1)),
	)
	_, err := exec.Execute(ctx, httpexec.Request{URL: srv.URL})
	require.ErrorContains(t, err, "rate limiter wait failed")
}

func TestExecutor_Execute_MethodAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	exec := httpexec.New(httpexec.WithClient(srv.Client()))
	_, err := exec.Execute(context.Background(), httpexec.Request{
		URL:    srv.URL,
		Method: http.MethodPost,
		Headers: map[string]string{
			"Authorization": "Bearer abc123",
		},
		Body: []byte(`{"q":"stars:>1000"}`),
	})
	require.NoError(t, err)
}
