package browser

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redirectChain fakes a page hopping through a list of URLs, one hop
// per WaitNavigation call.
type redirectChain struct {
	urls    []string
	pos     int
	waits   int
	cookies []Cookie
}

func (c *redirectChain) URL(ctx context.Context) (string, error) { return c.urls[c.pos], nil }

func (c *redirectChain) WaitNavigation(ctx context.Context) error {
	c.waits++
	if c.pos < len(c.urls)-1 {
		c.pos++
	}
	return nil
}

func (c *redirectChain) Navigate(ctx context.Context, rawURL string) error { return nil }
func (c *redirectChain) WaitReady(ctx context.Context) error               { return nil }
func (c *redirectChain) HTML(ctx context.Context) (string, error)          { return "", nil }
func (c *redirectChain) WaitVisible(ctx context.Context, selector string) (Element, error) {
	return nil, ErrNoElement
}
func (c *redirectChain) Query(ctx context.Context, selector string) (Element, error) {
	return nil, ErrNoElement
}
func (c *redirectChain) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	return nil, nil
}
func (c *redirectChain) WaitFrame(ctx context.Context, match func(*url.URL) bool) (Frame, error) {
	return nil, ErrNoElement
}
func (c *redirectChain) Cookies(ctx context.Context, rawURL string) ([]Cookie, error) {
	return c.cookies, nil
}
func (c *redirectChain) SetCookies(ctx context.Context, rawURL string, cookies []Cookie) error {
	return nil
}

func TestSkipKnownRedirectsWaitsOutMatches(t *testing.T) {
	chain := &redirectChain{urls: []string{
		"https://berkeley.zoom.us/saml/login?from=recording",
		"https://shib.berkeley.edu/idp/profile/SAML2/POST/SSO?execution=e1s1",
		"https://berkeley.zoom.us/recording",
	}}

	err := SkipKnownRedirects(context.Background(), chain, []string{
		"https://berkeley.zoom.us/saml/login",
		"https://shib.berkeley.edu/idp/profile/SAML2/POST/SSO",
	}, 0)
	require.NoError(t, err)

	// Query strings differ between the skip list and the live page;
	// matching is origin+path only.
	assert.Equal(t, 2, chain.waits)
	current, _ := chain.URL(context.Background())
	assert.Equal(t, "https://berkeley.zoom.us/recording", current)
}

func TestSkipKnownRedirectsNoMatchReturnsImmediately(t *testing.T) {
	chain := &redirectChain{urls: []string{"https://auth.berkeley.edu/cas/login?service=x"}}

	err := SkipKnownRedirects(context.Background(), chain, []string{
		"https://berkeley.zoom.us/saml/login",
	}, 0)
	require.NoError(t, err)
	assert.Zero(t, chain.waits)
}

func TestSkipKnownRedirectsBoundedByMaxHops(t *testing.T) {
	// A page stuck on a skip URL must not hang forever.
	chain := &redirectChain{urls: []string{"https://berkeley.zoom.us/saml/login"}}

	err := SkipKnownRedirects(context.Background(), chain, []string{
		"https://berkeley.zoom.us/saml/login",
	}, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, chain.waits)
}

func TestSkipKnownRedirectsEmptyListIsNoop(t *testing.T) {
	err := SkipKnownRedirects(context.Background(), nil, nil, 0)
	assert.NoError(t, err)
}

func TestCookieString(t *testing.T) {
	chain := &redirectChain{
		urls: []string{"https://berkeley.zoom.us/recording"},
		cookies: []Cookie{
			{Name: "_zm_ssid", Value: "aw1_c_abc"},
			{Name: "zm_haid", Value: "42"},
		},
	}

	s, err := CookieString(context.Background(), chain, "https://berkeley.zoom.us/recording")
	require.NoError(t, err)
	assert.Equal(t, "_zm_ssid=aw1_c_abc; zm_haid=42", s)
}
