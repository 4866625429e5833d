package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
)

// Config holds chromedp driver settings.
type Config struct {
	// Headless runs Chrome in the new headless mode. Interactive flows
	// (manual 2FA) need a visible window.
	Headless bool

	// UserAgent overrides the pool-rotated agent when non-empty.
	UserAgent string

	// FramePollInterval controls how often WaitFrame re-scans targets.
	FramePollInterval time.Duration
}

// Chromedp is the chromedp-backed Driver.
type Chromedp struct {
	session
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	logger        arbor.ILogger
	pollInterval  time.Duration
}

// session carries the tab context shared by page- and frame-scoped
// lookups.
type session struct {
	ctx context.Context
}

// NewChromedp launches a browser and returns a driver bound to its first
// tab. The returned cleanup closes the browser.
func NewChromedp(ctx context.Context, cfg Config, logger arbor.ILogger) (*Chromedp, func(), error) {
	ua := cfg.UserAgent
	if ua == "" {
		ua = RandomUserAgent()
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(ua),

		// Keep the automated session indistinguishable from a normal
		// browser; the SSO and Duo pages both fingerprint.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),

		chromedp.WindowSize(1920, 1080),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)

	cleanup := func() {
		browserCancel()
		allocCancel()
	}

	// Startup probe so a missing Chrome binary fails here, not mid-login.
	probeCtx, probeCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("browser failed startup probe: %w", err)
	}

	poll := cfg.FramePollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}

	d := &Chromedp{
		session:       session{ctx: browserCtx},
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		logger:        logger,
		pollInterval:  poll,
	}
	return d, cleanup, nil
}

func (d *Chromedp) Navigate(ctx context.Context, rawURL string) error {
	return d.run(ctx, chromedp.Navigate(rawURL))
}

func (d *Chromedp) URL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// WaitNavigation blocks until the main frame commits its next
// navigation.
func (d *Chromedp) WaitNavigation(ctx context.Context) error {
	navigated := make(chan struct{}, 1)
	listenCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventFrameNavigated); ok && e.Frame.ParentID == "" {
			select {
			case navigated <- struct{}{}:
			default:
			}
		}
	})

	select {
	case <-navigated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *Chromedp) WaitReady(ctx context.Context) error {
	var ready bool
	return d.run(ctx, chromedp.Poll(`document.readyState === "complete"`, &ready))
}

// WaitFrame scans browser targets until one matching the predicate
// appears. Cross-origin frames (the Duo prompt) surface as separate
// targets, so the returned Frame gets its own chromedp context.
func (d *Chromedp) WaitFrame(ctx context.Context, match func(*url.URL) bool) (Frame, error) {
	for {
		targets, err := chromedp.Targets(d.ctx)
		if err != nil {
			return nil, fmt.Errorf("listing browser targets: %w", err)
		}
		for _, t := range targets {
			if t.Type != "iframe" || t.URL == "" {
				continue
			}
			u, err := url.Parse(t.URL)
			if err != nil || !match(u) {
				continue
			}
			frameCtx, frameCancel := chromedp.NewContext(d.ctx, chromedp.WithTargetID(t.TargetID))
			return &cdpFrame{session: session{ctx: frameCtx}, cancel: frameCancel}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

func (d *Chromedp) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (d *Chromedp) Cookies(ctx context.Context, rawURL string) ([]Cookie, error) {
	var out []Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().WithURLs([]string{rawURL}).Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  int64(c.Expires),
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
				SameSite: string(c.SameSite),
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies for %s: %w", rawURL, err)
	}
	return out, nil
}

func (d *Chromedp) SetCookies(ctx context.Context, rawURL string, cookies []Cookie) error {
	target, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid cookie URL %q: %w", rawURL, err)
	}

	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		for _, c := range cookies {
			domain := strings.TrimPrefix(c.Domain, ".")
			if domain == "" {
				domain = target.Host
			}

			param := network.SetCookie(c.Name, c.Value).
				WithDomain(domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)

			if c.Expires > 0 {
				expires := time.Unix(c.Expires, 0)
				if expires.After(time.Now()) {
					ts := cdp.TimeSinceEpoch(expires)
					param = param.WithExpires(&ts)
				}
			}
			switch strings.ToLower(c.SameSite) {
			case "strict":
				param = param.WithSameSite(network.CookieSameSiteStrict)
			case "lax":
				param = param.WithSameSite(network.CookieSameSiteLax)
			case "none":
				param = param.WithSameSite(network.CookieSameSiteNone)
			}

			if err := param.Do(ctx); err != nil {
				d.logger.Warn().
					Err(err).
					Str("cookie", c.Name).
					Str("domain", domain).
					Msg("Failed to restore cookie")
			}
		}
		return nil
	}))
}

// run executes actions on the tab context while honoring the caller's
// context for cancellation.
func (s session) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s session) WaitVisible(ctx context.Context, selector string) (Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoElement
	}
	return &cdpElement{session: s, node: nodes[0], sel: selector}, nil
}

func (s session) Query(ctx context.Context, selector string) (Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoElement
	}
	return &cdpElement{session: s, node: nodes[0], sel: selector}, nil
}

func (s session) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	elems := make([]Element, len(nodes))
	for i, n := range nodes {
		elems[i] = &cdpElement{session: s, node: n, sel: selector}
	}
	return elems, nil
}

type cdpFrame struct {
	session
	cancel context.CancelFunc
}

func (f *cdpFrame) URL(ctx context.Context) (string, error) {
	var loc string
	if err := f.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Close releases the frame-scoped chromedp context.
func (f *cdpFrame) Close() {
	f.cancel()
}

type cdpElement struct {
	session
	node *cdp.Node
	sel  string
}

func (e *cdpElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.run(ctx, chromedp.TextContent(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *cdpElement) Attr(ctx context.Context, name string) (string, error) {
	return e.node.AttributeValue(name), nil
}

func (e *cdpElement) Tag(ctx context.Context) (string, error) {
	return strings.ToUpper(e.node.NodeName), nil
}

func (e *cdpElement) HasClass(ctx context.Context, name string) (bool, error) {
	for _, cls := range strings.Fields(e.node.AttributeValue("class")) {
		if cls == name {
			return true, nil
		}
	}
	return false, nil
}

func (e *cdpElement) Type(ctx context.Context, text string) error {
	return e.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}

func (e *cdpElement) Press(ctx context.Context, key string) error {
	keys, ok := keyChords[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return e.run(ctx, chromedp.SendKeys(e.ids(), keys, chromedp.ByNodeID))
}

func (e *cdpElement) Click(ctx context.Context) error {
	return e.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID))
}

// SelectOption sets the value through the DOM and fires a change event;
// plain value assignment does not notify the page's listeners.
func (e *cdpElement) SelectOption(ctx context.Context, value string) error {
	return e.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		fn := `function(v) { this.value = v; this.dispatchEvent(new Event("change", { bubbles: true })); }`
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		_, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithArguments([]*runtime.CallArgument{{Value: raw}}).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("select change handler threw: %s", exc.Text)
		}
		return nil
	}))
}

var keyChords = map[string]string{
	"Enter": kb.Enter,
	"Tab":   kb.Tab,
}
