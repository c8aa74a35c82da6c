package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	loginUsername string
	loginPassword string
	loginProxy    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log an account in and store its session credentials",
	Long: `Opens a browser, runs the interactive login flow (resolving any
verification challenges on the terminal), verifies the session against
the settings page, and stores cookies plus API tokens for later runs.

The password can be passed with --password, the DMSCOUT_PASSWORD
environment variable, or typed at the hidden prompt.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Account username (required)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginProxy, "proxy", "", "Proxy as host:port or host:port:user:pass")
	loginCmd.MarkFlagRequired("username")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	password := loginPassword
	if password == "" {
		password = os.Getenv("DMSCOUT_PASSWORD")
	}
	if password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s: ", loginUsername)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimSpace(string(raw))
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	driver, err := newDriver(loginProxy, "")
	if err != nil {
		return err
	}
	if err := driver.Start(ctx); err != nil {
		return err
	}
	defer driver.Close()

	a := newAuthenticator(driver, s)
	sess, err := a.Login(ctx, loginUsername, password, loginProxy)
	if err != nil {
		return err
	}

	logger.Info("Login complete",
		zap.String("username", sess.Username),
		zap.Int("cookies", len(sess.Cookies)))
	fmt.Printf("Session stored for %s (%d cookies)\n", sess.Username, len(sess.Cookies))
	return nil
}

// signalContext returns the operation context, cancelled by SIGINT or
// SIGTERM and bounded by the global timeout.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
