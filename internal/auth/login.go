// Package auth drives the interactive login flow: credential entry,
// challenge resolution, session verification, and credential capture
// into the account store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dmscout/internal/browser"
	"dmscout/internal/logging"
	"dmscout/internal/store"
	"dmscout/internal/types"
)

// ProbeURL is a settings page only authenticated sessions can reach.
// Landing on it verifies a login; being bounced to the login flow
// falsifies one.
const ProbeURL = browser.BaseURL + "/settings/privacy_and_safety"

// bearerToken is the public token the web client sends on API calls.
const bearerToken = "Bearer AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

const (
	usernameSelector    = `input[autocomplete="username"]`
	passwordSelector    = `input[name="password"]`
	loginButtonSelector = `button[data-testid="LoginForm_Login_Button"]`
)

// State tracks the login flow's progress, mostly for logging.
type State string

const (
	StateStart              State = "start"
	StateCredentialsEntered State = "credentials_entered"
	StateChallengeRequired  State = "challenge_required"
	StateChallengeResolved  State = "challenge_resolved"
	StateEstablished        State = "established"
	StateFailed             State = "failed"
)

// PageDriver is the slice of the browser driver the login flow needs.
// Tests substitute a scripted fake.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	ClickByText(ctx context.Context, text string) error
	HasText(ctx context.Context, text string) bool
	Has(ctx context.Context, selector string) bool
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	URL() string
	Cookies() ([]types.Cookie, error)
	RestoreCookies(cookies []types.Cookie) error
	CookieValue(name string) (string, bool)
	UserAgent(ctx context.Context) (string, error)
}

// SessionStore persists account sessions. *store.Store satisfies it.
type SessionStore interface {
	SaveAccountSession(sess *types.AccountSession) error
	GetAccountSession(username string) (*types.AccountSession, error)
}

// Options tunes the flow.
type Options struct {
	// ChallengeRounds caps how many verification steps one login may
	// raise before the flow gives up.
	ChallengeRounds int

	// SettleDelay is the pause after each submission while the page
	// transitions.
	SettleDelay time.Duration

	// ProbeTimeout bounds the post-login verification navigation.
	ProbeTimeout time.Duration
}

func (o Options) challengeRounds() int {
	if o.ChallengeRounds <= 0 {
		return 5
	}
	return o.ChallengeRounds
}

func (o Options) settleDelay() time.Duration {
	if o.SettleDelay <= 0 {
		return 3 * time.Second
	}
	return o.SettleDelay
}

// Authenticator runs login flows against one account.
type Authenticator struct {
	driver PageDriver
	store  SessionStore
	input  InputProvider
	opts   Options

	state State
}

func New(driver PageDriver, st SessionStore, input InputProvider, opts Options) *Authenticator {
	return &Authenticator{driver: driver, store: st, input: input, opts: opts, state: StateStart}
}

// State returns the flow's last recorded state.
func (a *Authenticator) State() State {
	return a.state
}

// Resume restores a previously stored session and verifies it with the
// settings probe. Returns the session when it still works, or
// store.ErrAccountNotFound / ErrAuthentication when it does not.
func (a *Authenticator) Resume(ctx context.Context, username string) (*types.AccountSession, error) {
	sess, err := a.store.GetAccountSession(username)
	if err != nil {
		return nil, err
	}
	if err := a.driver.RestoreCookies(sess.Cookies); err != nil {
		return nil, fmt.Errorf("restore cookies: %w", err)
	}
	if !a.probe(ctx) {
		logging.Auth("Stored session for %s no longer valid", username)
		return nil, fmt.Errorf("stored session rejected for %s: %w", username, ErrAuthentication)
	}
	a.state = StateEstablished
	logging.Auth("Resumed stored session for %s", username)
	return sess, nil
}

// Login performs the full interactive flow and persists the resulting
// session. The store is written exactly once, after verification.
func (a *Authenticator) Login(ctx context.Context, username, password, proxyRef string) (*types.AccountSession, error) {
	timer := logging.StartTimer(logging.CategoryAuth, "Login")
	defer timer.Stop()

	a.state = StateStart
	if err := a.driver.Navigate(ctx, browser.LoginURL); err != nil {
		a.state = StateFailed
		return nil, fmt.Errorf("open login flow: %w", err)
	}

	// A session cookie may already be live in this browser profile.
	if a.probe(ctx) {
		logging.Auth("Browser already authenticated, capturing session")
		return a.capture(ctx, username, proxyRef)
	}
	if err := a.driver.Navigate(ctx, browser.LoginURL); err != nil {
		a.state = StateFailed
		return nil, fmt.Errorf("reopen login flow: %w", err)
	}

	if err := a.enterCredentials(ctx, username, password); err != nil {
		a.state = StateFailed
		return nil, err
	}
	a.state = StateCredentialsEntered

	if err := a.resolveChallenges(ctx); err != nil {
		a.state = StateFailed
		return nil, err
	}

	if !a.probe(ctx) {
		a.state = StateFailed
		return nil, fmt.Errorf("login not verified for %s: %w", username, ErrAuthentication)
	}
	return a.capture(ctx, username, proxyRef)
}

func (a *Authenticator) enterCredentials(ctx context.Context, username, password string) error {
	if err := a.driver.WaitVisible(ctx, usernameSelector, 15*time.Second); err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	if err := a.driver.Type(ctx, usernameSelector, username); err != nil {
		return fmt.Errorf("enter username: %w", err)
	}
	if err := a.driver.ClickByText(ctx, "Next"); err != nil {
		return fmt.Errorf("advance past username: %w", err)
	}
	a.settle(ctx)

	// The platform sometimes interposes an identity check before the
	// password prompt.
	if err := a.resolveChallenges(ctx); err != nil {
		return err
	}

	if err := a.driver.WaitVisible(ctx, passwordSelector, 10*time.Second); err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := a.driver.Type(ctx, passwordSelector, password); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	if err := a.driver.Click(ctx, loginButtonSelector); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	a.settle(ctx)
	return nil
}

// resolveChallenges clears verification steps until none remain or the
// round cap is hit. Unsupported challenges and exhausted rounds fail
// the flow.
func (a *Authenticator) resolveChallenges(ctx context.Context) error {
	for round := 0; round < a.opts.challengeRounds(); round++ {
		ch, found := a.detect(ctx)
		if !found {
			return nil
		}
		a.state = StateChallengeRequired
		logging.Auth("Login challenge detected: %s", ch.Name)

		switch ch.kind {
		case kindUnsupported:
			return fmt.Errorf("challenge %s: %w", ch.Name, ErrUnsupportedChallenge)

		case kindAcknowledge:
			if err := a.driver.ClickByText(ctx, ch.clickTarget); err != nil {
				return fmt.Errorf("acknowledge %s: %w", ch.Name, err)
			}

		case kindInput:
			answer, err := a.input.Prompt(ctx, ch.Prompt)
			if err != nil {
				return fmt.Errorf("challenge %s: %w", ch.Name, err)
			}
			if err := a.driver.Type(ctx, challengeInputSelector, answer); err != nil {
				return fmt.Errorf("fill %s: %w", ch.Name, err)
			}
			if err := a.driver.ClickByText(ctx, "Next"); err != nil {
				return fmt.Errorf("advance past %s: %w", ch.Name, err)
			}
		}
		a.state = StateChallengeResolved
		a.settle(ctx)
	}
	return fmt.Errorf("challenge rounds exhausted: %w", ErrUnsupportedChallenge)
}

func (a *Authenticator) detect(ctx context.Context) (Challenge, bool) {
	for _, ch := range challenges {
		if a.driver.HasText(ctx, ch.Marker) {
			return ch, true
		}
	}
	return Challenge{}, false
}

// probe navigates to the settings page and checks whether the session
// held.
func (a *Authenticator) probe(ctx context.Context) bool {
	if a.opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.ProbeTimeout)
		defer cancel()
	}
	if err := a.driver.Navigate(ctx, ProbeURL); err != nil {
		logging.AuthDebug("Probe navigation failed: %v", err)
		return false
	}
	return a.driver.URL() == ProbeURL
}

// capture extracts tokens and cookies from the live session and writes
// the account record.
func (a *Authenticator) capture(ctx context.Context, username, proxyRef string) (*types.AccountSession, error) {
	cookies, err := a.driver.Cookies()
	if err != nil {
		return nil, fmt.Errorf("snapshot cookies: %w", err)
	}

	tokens := map[string]string{
		"authorization": bearerToken,
		"content-type":  "application/json",
	}
	if csrf, ok := a.driver.CookieValue("ct0"); ok {
		tokens["x-csrf-token"] = csrf
	}
	if ua, err := a.driver.UserAgent(ctx); err == nil && ua != "" {
		tokens["user-agent"] = ua
	}

	now := time.Now()
	sess := &types.AccountSession{
		Username:  strings.ToLower(username),
		Cookies:   cookies,
		Tokens:    tokens,
		Proxy:     proxyRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveAccountSession(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	a.state = StateEstablished
	logging.Auth("Session established and stored for %s", sess.Username)
	return sess, nil
}

func (a *Authenticator) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(a.opts.settleDelay()):
	}
}

// EstablishSession resumes a stored session when possible, otherwise
// runs a fresh login. The common entry point for run commands.
func EstablishSession(ctx context.Context, a *Authenticator, username, password, proxyRef string) (*types.AccountSession, error) {
	sess, err := a.Resume(ctx, username)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, store.ErrAccountNotFound) {
		logging.Auth("No stored session for %s, starting login", username)
	} else {
		logging.AuthDebug("Resume failed for %s: %v", username, err)
	}
	if password == "" {
		return nil, fmt.Errorf("no valid stored session for %s and no password supplied: %w", username, ErrAuthentication)
	}
	return a.Login(ctx, username, password, proxyRef)
}
