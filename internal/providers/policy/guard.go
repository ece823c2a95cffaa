package policy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// ErrBlocked is matched by every policy veto.
var ErrBlocked = errors.New("blocked by policy")

// BlockedError explains a veto.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("URL not allowed (%s): %s", e.Reason, e.URL)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// Resolver resolves host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

const maxRedirects = 10

var nonPublic = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

var internalSuffixes = []string{".localhost", ".local", ".internal", ".home.arpa"}

// Guard rejects URLs that would reach the server's own network.
type Guard struct {
	resolver Resolver
}

// NewGuard creates a guard. A nil resolver uses net.DefaultResolver.
func NewGuard(resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{resolver: resolver}
}

// Check allows only http and https URLs whose host resolves exclusively to
// public addresses.
func (g *Guard) Check(ctx context.Context, u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return &BlockedError{URL: u.String(), Reason: "scheme"}
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return &BlockedError{URL: u.String(), Reason: "missing host"}
	}
	if host == "localhost" {
		return &BlockedError{URL: u.String(), Reason: "private address"}
	}
	for _, suffix := range internalSuffixes {
		if strings.HasSuffix(host, suffix) {
			return &BlockedError{URL: u.String(), Reason: "private address"}
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !IsPublic(addr) {
			return &BlockedError{URL: u.String(), Reason: "private address"}
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok || !IsPublic(addr) {
			return &BlockedError{URL: u.String(), Reason: "private address"}
		}
	}
	return nil
}

// CheckRedirect re-validates every redirect hop. It fits http.Client.CheckRedirect.
func (g *Guard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return g.Check(req.Context(), req.URL)
}

// IsPublic reports whether addr is globally routable.
func IsPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() {
		return false
	}
	for _, p := range nonPublic {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// DialControl refuses connections to non-public addresses, closing the gap
// between name resolution in Check and the actual dial.
func DialControl(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	if !IsPublic(ap.Addr()) {
		return &BlockedError{URL: address, Reason: "private address"}
	}
	return nil
}
