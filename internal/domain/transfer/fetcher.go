package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/GriffinCanCode/bastion/internal/providers/http/client"
	"github.com/GriffinCanCode/bastion/internal/shared/paths"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// URLGuard vetoes URLs the server must not fetch.
type URLGuard interface {
	Check(ctx context.Context, u *url.URL) error
}

// GuardFunc adapts a function to URLGuard.
type GuardFunc func(ctx context.Context, u *url.URL) error

func (f GuardFunc) Check(ctx context.Context, u *url.URL) error { return f(ctx, u) }

// Fetcher downloads URLs into a session download directory.
type Fetcher struct {
	client  *client.Client
	guard   URLGuard
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewFetcher creates a fetcher. The client should vet redirects and dials
// with the same guard.
func NewFetcher(c *client.Client, guard URLGuard, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: c, guard: guard, timeout: timeout, logger: logger, now: time.Now}
}

// Fetch downloads rawURL into dir and returns the stored file name. mark, if
// set, is called with the final name just before the file appears.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string, mark func(name string)) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if f.guard != nil {
		if err := f.guard.Check(ctx, u); err != nil {
			return "", err
		}
	}

	name := f.filename(u)
	dest, err := paths.SafeJoin(dir, name)
	if err != nil {
		name = f.fallbackName()
		if dest, err = paths.SafeJoin(dir, name); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := f.client.Request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Execute(func() (*resty.Response, error) {
		return req.SetDoNotParseResponse(true).Get(u.String())
	})
	if err != nil {
		return "", err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode())
	}

	tmp, err := os.CreateTemp(dir, ".fetch-*.tmp")
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	if mark != nil {
		mark(name)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	f.logger.Debug("download stored", zap.String("url", u.Redacted()), zap.String("file", name))
	return name, nil
}

func (f *Fetcher) filename(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return f.fallbackName()
	}
	return paths.SanitizeFilename(base)
}

func (f *Fetcher) fallbackName() string {
	return "download-" + strconv.FormatInt(f.now().UnixMilli(), 10)
}
