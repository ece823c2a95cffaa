package policy

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Allowlist matches hosts by registrable domain, so "google.com" covers
// "www.google.com" but not "google.com.evil.io".
type Allowlist struct {
	domains map[string]struct{}
}

// NewAllowlist builds an allowlist from domain names.
func NewAllowlist(domains []string) *Allowlist {
	a := &Allowlist{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		if root := registrable(d); root != "" {
			a.domains[root] = struct{}{}
		}
	}
	return a
}

// Allows reports whether host belongs to an allowlisted domain.
func (a *Allowlist) Allows(host string) bool {
	if a == nil {
		return false
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" {
		return true
	}
	_, ok := a.domains[registrable(host)]
	return ok
}

func registrable(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}
