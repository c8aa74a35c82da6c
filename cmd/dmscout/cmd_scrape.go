package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dmscout/internal/auth"
	"dmscout/internal/browser"
	"dmscout/internal/intercept"
	"dmscout/internal/reconcile"
)

var (
	scrapeUsername string
	scrapePassword string
	scrapeProxy    string
	scrapeScrolls  int
	scrapeOpen     int
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Harvest group conversation data from the messages inbox",
	Long: `Resumes the stored session (or logs in when --password is given),
opens the messages inbox, and provokes the client into fetching its
conversation data by scrolling. The network responses are intercepted,
decoded, and reconciled into the local dataset. Raw response bodies are
archived per run for replay.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeUsername, "username", "u", "", "Account username (required)")
	scrapeCmd.Flags().StringVarP(&scrapePassword, "password", "p", "", "Password, for when no stored session works")
	scrapeCmd.Flags().StringVar(&scrapeProxy, "proxy", "", "Proxy override (defaults to the one stored at login)")
	scrapeCmd.Flags().IntVar(&scrapeScrolls, "scrolls", 0, "Inbox scroll attempts (default from config)")
	scrapeCmd.Flags().IntVar(&scrapeOpen, "open", 0, "Also open up to N conversations to surface truncated groups")
	scrapeCmd.MarkFlagRequired("username")
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	proxyRef := scrapeProxy
	if proxyRef == "" {
		if sess, err := s.GetAccountSession(scrapeUsername); err == nil {
			proxyRef = sess.Proxy
		}
	}

	driver, err := newDriver(proxyRef, storedUserAgent(s, scrapeUsername))
	if err != nil {
		return err
	}
	if err := driver.Start(ctx); err != nil {
		return err
	}
	defer driver.Close()

	a := newAuthenticator(driver, s)
	sess, err := auth.EstablishSession(ctx, a, scrapeUsername, scrapePassword, proxyRef)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger.Info("Scrape run starting",
		zap.String("run_id", runID),
		zap.String("username", sess.Username))

	rec := reconcile.New(s)
	var totals reconcile.Report
	captures := 0

	bodies, stop := driver.CaptureResponses(ctx, intercept.MatchesEndpoint)
	done := make(chan error, 1)
	go func() {
		done <- consumeCaptures(sess.Username, runID, bodies, s, rec, &totals, &captures)
	}()

	if err := driver.Navigate(ctx, browser.MessagesURL); err != nil {
		stop()
		<-done
		return fmt.Errorf("open messages inbox: %w", err)
	}

	scrolls := scrapeScrolls
	if scrolls <= 0 {
		scrolls = cfg.Scrape.Scrolls
	}
	if err := driver.StimulateInbox(ctx, scrolls, cfg.ScrollSettle()); err != nil {
		logger.Warn("Inbox stimulation interrupted", zap.Error(err))
	}
	if scrapeOpen > 0 {
		opened := driver.OpenConversations(ctx, scrapeOpen, cfg.ScrollSettle())
		logger.Debug("Opened conversations", zap.Int("count", opened))
	}

	// Let trailing responses land before closing the stream.
	select {
	case <-ctx.Done():
	case <-time.After(cfg.CaptureWindow()):
	}
	stop()
	if err := <-done; err != nil {
		return err
	}

	logger.Info("Scrape run complete",
		zap.String("run_id", runID),
		zap.Int("captures", captures),
		zap.Int("conversations_new", totals.ConversationsInserted),
		zap.Int("conversations_updated", totals.ConversationsUpdated),
		zap.Int("participants", totals.Participants),
		zap.Int("memberships", totals.Memberships),
		zap.Int("skipped", totals.Skipped))
	fmt.Printf("Run %s: %d captures, %s\n", runID, captures, totals.String())
	return nil
}

// consumeCaptures drains the response stream: archive each body, decode
// it, and merge the result. Undecodable bodies are archived and
// skipped; a store failure aborts.
func consumeCaptures(username, runID string, bodies <-chan browser.ResponseBody, s rawArchiver, rec *reconcile.Reconciler, totals *reconcile.Report, captures *int) error {
	for rb := range bodies {
		url := browser.NormalizeURL(rb.URL)
		if err := s.SaveRawCapture(runID, username, url, string(rb.Body)); err != nil {
			return fmt.Errorf("archive capture from %s: %w", url, err)
		}
		*captures++

		batch, skipped, err := intercept.Decode(username, rb.URL, rb.Body)
		if err != nil {
			logger.Warn("Capture not decodable", zap.String("url", url), zap.Error(err))
			continue
		}
		rep, err := rec.Apply(batch)
		if err != nil {
			return err
		}
		rep.Skipped += skipped
		totals.Add(rep)
	}
	return nil
}

// rawArchiver is the slice of the store the capture consumer needs.
type rawArchiver interface {
	SaveRawCapture(runID, username, url, body string) error
}
