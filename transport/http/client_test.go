package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/mercuria/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(apiURL string) Config {
	return Config{
		APIURL:       apiURL,
		AnalyticsURL: apiURL + "/analytics-base",
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
}

func TestAPIClient_SendsHeadersAndBody(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewAPIClient(testConfig(srv.URL + "/api/v1"))
	req, err := core.NewRequest(http.MethodPost, "/wallets/w-1/withdraw", map[string]string{"amount": "10.00"})
	require.NoError(t, err)
	req.Bearer = "access-1"
	req.IdempotencyKey = "key-1"

	resp, err := c.RoundTrip(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	var out struct{ OK bool }
	require.NoError(t, resp.Decode(&out))
	assert.True(t, out.OK)

	assert.Equal(t, "/api/v1/wallets/w-1/withdraw", got.URL.Path)
	assert.Equal(t, "Bearer access-1", got.Header.Get("Authorization"))
	assert.Equal(t, "key-1", got.Header.Get("Idempotency-Key"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"amount":"10.00"}`, string(gotBody))
}

func TestAPIClient_OmitsEmptyBearer(t *testing.T) {
	var header string
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
		header = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewAPIClient(testConfig(srv.URL))
	_, err := c.RoundTrip(context.Background(), core.Request{Method: http.MethodGet, Path: "/wallets"})
	require.NoError(t, err)
	assert.False(t, present)
	assert.Empty(t, header)
}

func TestAPIClient_AnalyticsBaseAndQuery(t *testing.T) {
	var got *url.URL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewAPIClient(testConfig(srv.URL))
	_, err := c.RoundTrip(context.Background(), core.Request{
		Service: core.ServiceAnalytics,
		Method:  http.MethodGet,
		Path:    "analytics/daily",
		Query:   url.Values{"days": {"7"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/analytics-base/analytics/daily", got.Path)
	assert.Equal(t, "7", got.Query().Get("days"))
}

func TestAPIClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		sentinel error
		message  string
	}{
		{http.StatusUnauthorized, `{"error":"Token expired"}`, core.ErrAuth, "Token expired"},
		{http.StatusForbidden, `{"error":"Forbidden"}`, core.ErrAuth, "Forbidden"},
		{http.StatusBadRequest, `{"error":"Invalid request"}`, core.ErrValidation, "Invalid request"},
		{http.StatusUnprocessableEntity, `{"error":"Insufficient balance"}`, core.ErrValidation, "Insufficient balance"},
		{http.StatusConflict, `{"error":"Idempotency key reused"}`, core.ErrConflict, "Idempotency key reused"},
		{http.StatusNotFound, `not json`, core.ErrRejected, "Not Found"},
		{http.StatusNotImplemented, `{"message":"nope"}`, core.ErrRejected, "nope"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewAPIClient(testConfig(srv.URL))
			_, err := c.RoundTrip(context.Background(), core.Request{Method: http.MethodPost, Path: "/x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *core.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestAPIClient_RetriesReadsOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"wallets":[]}`))
	}))
	defer srv.Close()

	c := NewAPIClient(testConfig(srv.URL))
	_, err := c.RoundTrip(context.Background(), core.Request{Method: http.MethodGet, Path: "/wallets"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAPIClient_NeverRetriesMutations(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewAPIClient(testConfig(srv.URL))
	_, err := c.RoundTrip(context.Background(), core.Request{Method: http.MethodPost, Path: "/transactions"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewAPIClient(testConfig(addr))
	_, err := c.RoundTrip(context.Background(), core.Request{Method: http.MethodPost, Path: "/transactions"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNetwork)
}

func TestAPIClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewAPIClient(testConfig(srv.URL))
	_, err := c.RoundTrip(ctx, core.Request{Method: http.MethodGet, Path: "/wallets"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
