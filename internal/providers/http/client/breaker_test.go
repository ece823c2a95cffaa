package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/bastion/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions("test")
	opts.Timeout = 2 * time.Second
	opts.MaxRetries = 0
	return opts
}

func TestClientCircuitBreakerIntegration(t *testing.T) {
	t.Run("breaker starts closed", func(t *testing.T) {
		c := NewClient(testOptions())
		require.NotNil(t, c.Breaker)
		assert.Equal(t, resilience.StateClosed, c.BreakerState())
	})

	t.Run("request fails fast when open", func(t *testing.T) {
		c := NewClient(testOptions())
		for i := 0; i < 10; i++ {
			_, _ = c.Execute(func() (*resty.Response, error) {
				return nil, errors.New("simulated failure")
			})
		}
		require.Equal(t, resilience.StateOpen, c.BreakerState())

		req, err := c.Request(context.Background())
		assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
		assert.Nil(t, req)

		_, err = c.Execute(func() (*resty.Response, error) { return nil, nil })
		assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	})

	t.Run("canceled calls do not trip", func(t *testing.T) {
		c := NewClient(testOptions())
		for i := 0; i < 20; i++ {
			_, _ = c.Execute(func() (*resty.Response, error) { return nil, context.Canceled })
		}
		assert.Equal(t, resilience.StateClosed, c.BreakerState())
	})
}

func TestExecuteReturnsServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testOptions())
	req, err := c.Request(context.Background())
	require.NoError(t, err)

	resp, err := c.Execute(func() (*resty.Response, error) { return req.Get(srv.URL) })
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode())
	assert.Equal(t, uint32(1), c.Breaker.Counts().TotalFailures)
}

func TestCheckRedirectIsApplied(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer origin.Close()

	blocked := errors.New("hop refused")
	opts := testOptions()
	opts.CheckRedirect = func(req *http.Request, via []*http.Request) error { return blocked }
	c := NewClient(opts)

	req, err := c.Request(context.Background())
	require.NoError(t, err)
	_, err = c.Execute(func() (*resty.Response, error) { return req.Get(origin.URL) })
	assert.ErrorIs(t, err, blocked)
}

func TestRateLimitRespectsContext(t *testing.T) {
	c := NewClient(testOptions())
	c.SetRateLimit(1)

	_, err := c.Request(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Request(ctx)
	assert.Error(t, err)
}
