// Package session persists captured browser session cookies so
// subsequent runs can skip interactive login entirely.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okzoomer/okzoomer/internal/browser"
)

// Cache holds the cookies of one fully authenticated run, grouped by
// the origin that issued them. Duo fields are absent when the login
// never reached a second-factor prompt.
type Cache struct {
	CalNet []browser.Cookie `json:"calnet"`
	Duo    []browser.Cookie `json:"duo,omitempty"`
	DuoURL string           `json:"duoUrl,omitempty"`
	Zoom   []browser.Cookie `json:"zoom"`
}

// Load reads a cached session from path. A missing file is not an
// error; it returns (nil, nil) so callers fall through to a fresh
// login.
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}

	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse session cache %s: %w", path, err)
	}

	return &c, nil
}

// Save writes the cache to path with owner-only permissions. Session
// cookies are credentials.
func (c *Cache) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create session cache directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session cache: %w", err)
	}

	return nil
}

// Capture reads the current cookies for each authenticated origin out
// of the browser. duoURL may be empty when login completed without a
// Duo prompt.
func Capture(ctx context.Context, d browser.Driver, calnetURL, duoURL, zoomOrigin string) (*Cache, error) {
	calnet, err := d.Cookies(ctx, calnetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to capture CalNet cookies: %w", err)
	}

	zoom, err := d.Cookies(ctx, zoomOrigin)
	if err != nil {
		return nil, fmt.Errorf("failed to capture Zoom cookies: %w", err)
	}

	c := &Cache{CalNet: calnet, Zoom: zoom}

	if duoURL != "" {
		duo, err := d.Cookies(ctx, duoURL)
		if err != nil {
			return nil, fmt.Errorf("failed to capture Duo cookies: %w", err)
		}
		c.Duo = duo
		c.DuoURL = duoURL
	}

	return c, nil
}

// Restore injects every cached cookie into the browser before
// navigation, so the next page load arrives already authenticated.
func (c *Cache) Restore(ctx context.Context, d browser.Driver, calnetURL, zoomOrigin string) error {
	if err := d.SetCookies(ctx, calnetURL, c.CalNet); err != nil {
		return fmt.Errorf("failed to restore CalNet cookies: %w", err)
	}
	if len(c.Duo) > 0 && c.DuoURL != "" {
		if err := d.SetCookies(ctx, c.DuoURL, c.Duo); err != nil {
			return fmt.Errorf("failed to restore Duo cookies: %w", err)
		}
	}
	if err := d.SetCookies(ctx, zoomOrigin, c.Zoom); err != nil {
		return fmt.Errorf("failed to restore Zoom cookies: %w", err)
	}

	return nil
}

// ZoomCookieHeader renders the Zoom cookies as a Cookie header value
// for direct API calls.
func (c *Cache) ZoomCookieHeader() string {
	pairs := make([]string, 0, len(c.Zoom))
	for _, ck := range c.Zoom {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	return strings.Join(pairs, "; ")
}
