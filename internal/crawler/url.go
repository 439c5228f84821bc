package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL appends a site-relative path to the fixed origin. Absolute
// references are returned untouched.
func ResolveURL(origin, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty reference for origin %s", origin)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	base, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("origin %q must be absolute", origin)
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return strings.TrimRight(base.String(), "/") + ref, nil
}
