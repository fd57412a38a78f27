package warmer

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseURLResolver resolves item paths against the site's base URL. Absolute
// item URLs are used as-is after normalization.
type BaseURLResolver struct {
	base *url.URL
}

// NewBaseURLResolver parses base; an empty base only accepts absolute item URLs.
func NewBaseURLResolver(base string) (*BaseURLResolver, error) {
	if strings.TrimSpace(base) == "" {
		return &BaseURLResolver{}, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}
	return &BaseURLResolver{base: u}, nil
}

// Resolve returns the canonical URL for item.
func (r *BaseURLResolver) Resolve(item Item) (string, error) {
	raw := strings.TrimSpace(item.URL)
	if raw == "" {
		return "", fmt.Errorf("item %d has no url", item.ID)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse item url: %w", err)
	}
	if !u.IsAbs() {
		if r.base == nil {
			return "", fmt.Errorf("item %d has relative url %q and no base url is configured", item.ID, raw)
		}
		u = r.base.ResolveReference(u)
	}
	return normalizeURL(u), nil
}

// normalizeURL lowercases scheme and host, drops default ports and fragments.
func normalizeURL(u *url.URL) string {
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	out.Host = strings.ToLower(out.Host)
	if out.Scheme == "http" {
		out.Host = strings.TrimSuffix(out.Host, ":80")
	}
	if out.Scheme == "https" {
		out.Host = strings.TrimSuffix(out.Host, ":443")
	}
	out.Fragment = ""
	out.RawFragment = ""
	return out.String()
}
