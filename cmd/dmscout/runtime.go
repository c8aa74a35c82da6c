package main

import (
	"fmt"
	"os"

	"dmscout/internal/auth"
	"dmscout/internal/browser"
	"dmscout/internal/proxy"
	"dmscout/internal/store"
)

// openStore opens the dataset at the configured location.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Database, err)
	}
	return s, nil
}

// newDriver builds a browser driver from config plus an optional proxy
// reference in host:port or host:port:user:pass form.
func newDriver(proxyRef, userAgent string) (*browser.Driver, error) {
	var settings *proxy.Settings
	if proxyRef != "" {
		parsed, err := proxy.Parse(proxyRef)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		settings = &parsed
	}
	return browser.New(browser.Config{
		Bin:               cfg.Browser.Bin,
		Headless:          cfg.Browser.Headless,
		Proxy:             settings,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.NavigationTimeout(),
		UserAgent:         userAgent,
	}), nil
}

// newAuthenticator wires the login flow against a live driver, with
// challenge answers read from the terminal.
func newAuthenticator(driver *browser.Driver, s *store.Store) *auth.Authenticator {
	input := auth.NewStdinProvider(os.Stdin, os.Stderr, cfg.ChallengeTimeout())
	return auth.New(driver, s, input, auth.Options{
		ProbeTimeout: cfg.ProbeTimeout(),
	})
}

// storedUserAgent returns the user agent captured at login, so later
// runs present the same browser fingerprint.
func storedUserAgent(s *store.Store, username string) string {
	sess, err := s.GetAccountSession(username)
	if err != nil {
		return ""
	}
	return sess.Tokens["user-agent"]
}
