package auth

import "errors"

var (
	// ErrAuthentication covers rejected credentials and logins that
	// never reach an authenticated state.
	ErrAuthentication = errors.New("authentication failed")

	// ErrUnsupportedChallenge is returned when the platform raises a
	// verification step this client cannot resolve, such as a CAPTCHA.
	ErrUnsupportedChallenge = errors.New("unsupported login challenge")

	// ErrChallengeTimeout is returned when the operator does not supply
	// a challenge response within the configured window.
	ErrChallengeTimeout = errors.New("challenge input timed out")
)
