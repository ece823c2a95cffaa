package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/GriffinCanCode/bastion/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Options configures a Client.
type Options struct {
	// Name identifies the breaker in logs and state callbacks.
	Name       string
	Timeout    time.Duration
	MaxRetries int
	// RPS limits outgoing requests; zero means unlimited.
	RPS       float64
	UserAgent string
	// DialControl vets every socket before it connects.
	DialControl func(network, address string, c syscall.RawConn) error
	// CheckRedirect vets each redirect hop.
	CheckRedirect func(req *http.Request, via []*http.Request) error
	// OnStateChange observes breaker transitions.
	OnStateChange func(name string, from, to resilience.State)
}

// DefaultOptions returns options for a general purpose outbound client.
func DefaultOptions(name string) Options {
	return Options{
		Name:       name,
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		UserAgent:  "Bastion/1.0",
	}
}

// Client wraps resty with rate limiting, retries and a circuit breaker
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Mu      sync.RWMutex
}

// NewClient creates an HTTP client whose transport retries transient failures
// and whose calls are guarded by a circuit breaker.
func NewClient(opts Options) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.DialControl != nil {
		if transport, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
			dialer := &net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
				Control:   opts.DialControl,
			}
			transport.DialContext = dialer.DialContext
		}
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	if opts.CheckRedirect != nil {
		restyClient.SetRedirectPolicy(resty.RedirectPolicyFunc(opts.CheckRedirect))
	} else {
		restyClient.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	}

	breaker := resilience.New(opts.Name, resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// Remote origins vary; trip on a long streak or a sustained failure rate.
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		OnStateChange: opts.OnStateChange,
		IsFailure:     isFailure,
	})

	c := &Client{
		Resty:   restyClient,
		Breaker: breaker,
	}
	c.SetRateLimit(opts.RPS)
	return c
}

// SetHeader adds default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// SetBaseURL sets the base URL for relative request paths.
func (c *Client) SetBaseURL(url string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetBaseURL(url)
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// Request creates new request with rate limiting and circuit breaker protection
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, resilience.ErrCircuitOpen
	}

	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// Execute runs an HTTP operation under the circuit breaker. Server errors
// count against the breaker; client errors do not.
func (c *Client) Execute(fn func() (*resty.Response, error)) (*resty.Response, error) {
	var resp *resty.Response
	err := c.Breaker.Do(func() error {
		var err error
		resp, err = fn()
		if err != nil {
			return err
		}
		if resp != nil && resp.StatusCode() >= http.StatusInternalServerError {
			return &StatusError{Code: resp.StatusCode()}
		}
		return nil
	})

	var statusErr *StatusError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, fmt.Errorf("external service unavailable: %w", err)
	case err != nil && !errors.As(err, &statusErr):
		return nil, err
	}
	return resp, nil
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

// StatusError reports a server-side HTTP failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

func isFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
