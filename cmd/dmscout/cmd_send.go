package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dmscout/internal/auth"
	"dmscout/internal/dispatch"
)

var (
	sendUsername  string
	sendPassword  string
	sendProxy     string
	sendGroups    []string
	sendTemplates string
	sendStrategy  string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a templated message to trusted group conversations",
	Long: `Resumes the stored session and sends one message into each trusted
conversation harvested for the account. Conversations carrying custom
messages use those instead of the template pool. Only trusted
conversations are messaged; explicitly requested groups that are not
trusted are recorded as skipped.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendUsername, "username", "u", "", "Account username (required)")
	sendCmd.Flags().StringVarP(&sendPassword, "password", "p", "", "Password, for when no stored session works")
	sendCmd.Flags().StringVar(&sendProxy, "proxy", "", "Proxy override (defaults to the one stored at login)")
	sendCmd.Flags().StringSliceVarP(&sendGroups, "group", "g", nil, "Restrict to specific conversation ids (repeatable)")
	sendCmd.Flags().StringVarP(&sendTemplates, "templates", "t", "", "Template file (.yaml, .json, or .txt)")
	sendCmd.Flags().StringVar(&sendStrategy, "strategy", "", "Template selection: random, sequential, or fixed")
	sendCmd.MarkFlagRequired("username")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	// Fail on a bad template file before any browser work.
	pool, err := dispatch.LoadTemplates(sendTemplates)
	if err != nil {
		return err
	}

	strategyName := sendStrategy
	if strategyName == "" {
		strategyName = cfg.Dispatch.Strategy
	}
	strategy, err := dispatch.NewStrategy(strategyName, time.Now().UnixNano())
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	proxyRef := sendProxy
	if proxyRef == "" {
		if sess, err := s.GetAccountSession(sendUsername); err == nil {
			proxyRef = sess.Proxy
		}
	}

	driver, err := newDriver(proxyRef, storedUserAgent(s, sendUsername))
	if err != nil {
		return err
	}
	if err := driver.Start(ctx); err != nil {
		return err
	}
	defer driver.Close()

	a := newAuthenticator(driver, s)
	sess, err := auth.EstablishSession(ctx, a, sendUsername, sendPassword, proxyRef)
	if err != nil {
		return err
	}

	minDelay, maxDelay := cfg.SendDelayBounds()
	d := dispatch.New(s, &dispatch.BrowserSender{
		Driver:      driver,
		SendTimeout: cfg.SendTimeout(),
	}, strategy, dispatch.Options{
		MinDelay: minDelay,
		MaxDelay: maxDelay,
	})

	sum, err := d.Run(ctx, sess.Username, sendGroups, pool)
	if err != nil {
		return err
	}

	logger.Info("Dispatch complete",
		zap.String("username", sess.Username),
		zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped))
	fmt.Printf("Dispatch for %s: %d sent, %d failed, %d skipped\n",
		sess.Username, sum.Sent, sum.Failed, sum.Skipped)
	return nil
}
