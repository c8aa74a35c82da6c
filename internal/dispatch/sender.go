package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dmscout/internal/browser"
)

// Composer selectors on the conversation page.
const (
	composerInputSelector = `[data-testid="dmComposerTextInput"]`
	composerSendSelector  = `[data-testid="dmComposerSendButton"]`
)

// Sender delivers one message into one conversation. Tests substitute
// a fake; production uses the browser-backed implementation.
type Sender interface {
	Send(ctx context.Context, conversationID, message string) error
}

// SendError reports a failed delivery to one conversation. The run
// continues past these; the cause lands in the send record's reason.
type SendError struct {
	ConversationID string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// BrowserSender drives the message composer through a live page.
type BrowserSender struct {
	Driver      *browser.Driver
	SendTimeout time.Duration
}

func (s *BrowserSender) timeout() time.Duration {
	if s.SendTimeout <= 0 {
		return 15 * time.Second
	}
	return s.SendTimeout
}

func (s *BrowserSender) Send(ctx context.Context, conversationID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	url := browser.MessagesURL + "/" + conversationID
	if err := s.Driver.Navigate(ctx, url); err != nil {
		return &SendError{conversationID, fmt.Errorf("open conversation: %w", err)}
	}
	if !strings.HasPrefix(s.Driver.URL(), url) {
		return &SendError{conversationID, fmt.Errorf("not reachable, landed on %s", s.Driver.URL())}
	}

	if err := s.Driver.WaitVisible(ctx, composerInputSelector, 5*time.Second); err != nil {
		return &SendError{conversationID, fmt.Errorf("composer not available: %w", err)}
	}
	if err := s.Driver.Type(ctx, composerInputSelector, message); err != nil {
		return &SendError{conversationID, fmt.Errorf("fill composer: %w", err)}
	}
	if err := s.Driver.WaitVisible(ctx, composerSendSelector, 5*time.Second); err != nil {
		return &SendError{conversationID, fmt.Errorf("send button not available: %w", err)}
	}
	if err := s.Driver.Click(ctx, composerSendSelector); err != nil {
		return &SendError{conversationID, fmt.Errorf("click send: %w", err)}
	}
	return nil
}
