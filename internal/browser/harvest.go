package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"dmscout/internal/logging"
)

// URLs the driver navigates during a run. The platform serves the same
// app on both hosts; x.com is the canonical one now.
const (
	BaseURL     = "https://x.com"
	LoginURL    = BaseURL + "/i/flow/login"
	MessagesURL = BaseURL + "/messages"
)

const conversationSelector = `div[data-testid="conversation"]`

// StimulateInbox scrolls the messages page the given number of times,
// pausing between scrolls so the client fires its paging requests. The
// capture stream picks the responses up; this method only provokes
// them.
func (d *Driver) StimulateInbox(ctx context.Context, scrolls int, settle time.Duration) error {
	timer := logging.StartTimer(logging.CategoryBrowser, "StimulateInbox")
	defer timer.Stop()

	for i := 0; i < scrolls; i++ {
		if err := d.ScrollBy(ctx, 1200); err != nil {
			logging.BrowserWarn("Inbox scroll %d failed: %v", i+1, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
		}
	}
	return nil
}

// OpenConversations clicks up to max visible conversation entries,
// returning to the inbox after each. Opening a conversation makes the
// client refetch its state, which surfaces groups the inbox payload
// truncated.
func (d *Driver) OpenConversations(ctx context.Context, max int, settle time.Duration) int {
	opened := 0
	for i := 0; i < max; i++ {
		els, err := d.page.Context(ctx).Elements(conversationSelector)
		if err != nil || i >= len(els) {
			break
		}
		if err := els[i].Click(proto.InputMouseButtonLeft, 1); err != nil {
			logging.BrowserDebug("Conversation click %d failed: %v", i, err)
			continue
		}
		opened++
		select {
		case <-ctx.Done():
			return opened
		case <-time.After(settle):
		}
		if err := d.Navigate(ctx, MessagesURL); err != nil {
			logging.BrowserWarn("Return to inbox failed: %v", err)
			return opened
		}
	}
	return opened
}
