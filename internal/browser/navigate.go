package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DefaultMaxRedirectHops bounds SkipKnownRedirects. SSO chains are short;
// anything past this is a loop.
const DefaultMaxRedirectHops = 10

// SkipKnownRedirects waits out intermediate hops while the page sits on
// one of the listed URLs (matched by origin and path, ignoring query).
// It returns once the page is somewhere else, or after maxHops
// navigations regardless.
func SkipKnownRedirects(ctx context.Context, d Driver, rawURLs []string, maxHops int) error {
	if len(rawURLs) == 0 {
		return nil
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxRedirectHops
	}

	skip := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid skip URL %q: %w", raw, err)
		}
		skip = append(skip, u)
	}

	for hop := 0; hop < maxHops; hop++ {
		current, err := d.URL(ctx)
		if err != nil {
			return err
		}
		cu, err := url.Parse(current)
		if err != nil {
			return fmt.Errorf("parsing current URL %q: %w", current, err)
		}

		matched := false
		for _, u := range skip {
			if sameOrigin(cu, u) && cu.Path == u.Path {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		if err := d.WaitNavigation(ctx); err != nil {
			return err
		}
	}
	return nil
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}

// CookieString renders the cookies visible to rawURL as a Cookie request
// header value.
func CookieString(ctx context.Context, d Driver, rawURL string) (string, error) {
	cookies, err := d.Cookies(ctx, rawURL)
	if err != nil {
		return "", err
	}
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; "), nil
}
