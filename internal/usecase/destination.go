package usecase

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// ParseDestination validates a navigation URL. Only http and https
// destinations can be classified; everything else (chrome://, about:, file:)
// is reported as ErrInvalidDestination.
func ParseDestination(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDestination, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: scheme %q", domain.ErrInvalidDestination, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", domain.ErrInvalidDestination)
	}
	return u, nil
}

// DestinationDomain returns the registrable domain used as the blocking key:
// www.reddit.com and old.reddit.com both map to reddit.com. IP addresses and
// single-label hosts are returned as is. Internationalized names come back in
// their ASCII (punycode) form, the form redirect rules accept.
func DestinationDomain(u *url.URL) string {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}
