package policy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestGuardCheck(t *testing.T) {
	g := NewGuard(fakeResolver{
		"example.com":  {"93.184.216.34"},
		"intranet.biz": {"10.0.0.7"},
		"mixed.org":    {"93.184.216.34", "127.0.0.1"},
		"v6.example":   {"2606:2800:220:1::1"},
	})

	tests := []struct {
		name    string
		url     string
		blocked bool
	}{
		{"public host", "https://example.com/path", false},
		{"public ipv6 host", "http://v6.example/", false},
		{"public literal", "http://93.184.216.34/", false},
		{"file scheme", "file:///etc/passwd", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"localhost", "http://localhost:8112/downloads", true},
		{"dot local", "http://printer.local/", true},
		{"dot internal", "http://metadata.google.internal/", true},
		{"loopback literal", "http://127.0.0.1:9222/json", true},
		{"metadata literal", "http://169.254.169.254/latest", true},
		{"private resolve", "https://intranet.biz/", true},
		{"any private answer", "https://mixed.org/", true},
		{"ipv6 loopback", "http://[::1]/", true},
		{"cgnat", "http://100.64.1.1/", true},
		{"missing host", "http:///nohost", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(context.Background(), mustParse(t, tt.url))
			if tt.blocked {
				assert.ErrorIs(t, err, ErrBlocked)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuardResolveFailureIsNotAVeto(t *testing.T) {
	g := NewGuard(fakeResolver{})
	err := g.Check(context.Background(), mustParse(t, "https://unknown.example/"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlocked)
}

func TestGuardCheckRedirect(t *testing.T) {
	g := NewGuard(fakeResolver{"example.com": {"93.184.216.34"}})

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1/admin", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, g.CheckRedirect(req, nil), ErrBlocked)

	req, err = http.NewRequest(http.MethodGet, "https://example.com/next", nil)
	require.NoError(t, err)
	assert.NoError(t, g.CheckRedirect(req, []*http.Request{req}))

	via := make([]*http.Request, maxRedirects)
	assert.Error(t, g.CheckRedirect(req, via))
}

func TestIsPublic(t *testing.T) {
	assert.True(t, IsPublic(netip.MustParseAddr("8.8.8.8")))
	assert.True(t, IsPublic(netip.MustParseAddr("2001:4860:4860::8888")))
	assert.False(t, IsPublic(netip.MustParseAddr("192.168.1.1")))
	assert.False(t, IsPublic(netip.MustParseAddr("::ffff:127.0.0.1")))
	assert.False(t, IsPublic(netip.MustParseAddr("fe80::1")))
	assert.False(t, IsPublic(netip.MustParseAddr("198.18.0.1")))
	assert.False(t, IsPublic(netip.Addr{}))
}

func TestDialControl(t *testing.T) {
	assert.NoError(t, DialControl("tcp4", "93.184.216.34:443", nil))
	assert.ErrorIs(t, DialControl("tcp4", "127.0.0.1:80", nil), ErrBlocked)
	assert.ErrorIs(t, DialControl("tcp6", "[::1]:80", nil), ErrBlocked)
	assert.Error(t, DialControl("tcp", "not-an-address", nil))
}
