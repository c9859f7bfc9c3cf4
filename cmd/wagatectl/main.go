// wagatectl drives a running gateway from the command line.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version      = "dev"
	serverURL    string
	sessionToken string
	timeout      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "wagatectl",
	Short: "Command line client for the WhatsApp gateway",
	Long: `wagatectl talks to a running gateway over its HTTP API.

  wagatectl qr --out code.png --wait             Pair a new session
  wagatectl status <session-id>                  Check a session
  wagatectl send 911234567890 "hello"            Send a message
  wagatectl send 911234567890 --file a.pdf       Send a file
  wagatectl bulk 911234567890 "hi" --count 10    Send the same message repeatedly
  wagatectl logout <session-id>                  End a session`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("WAGATE_SERVER", "http://localhost:4000"), "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&sessionToken, "token", envOr("WAGATE_TOKEN", ""), "session token from check_status")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *apiClient {
	return newAPIClient(serverURL, sessionToken, timeout)
}
