package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	qrOut      string
	qrWait     bool
	qrInterval time.Duration
)

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Start a new session and fetch its pairing QR code",
	Long: `Start a new session and fetch its pairing QR code.

With --out the PNG is written to a file; otherwise the data URL is printed.
With --wait the command polls the session until it is READY and prints the
session token.`,
	Args: cobra.NoArgs,
	RunE: runQR,
}

func init() {
	qrCmd.Flags().StringVarP(&qrOut, "out", "o", "", "write the QR code PNG to this file")
	qrCmd.Flags().BoolVarP(&qrWait, "wait", "w", false, "wait until the session is READY")
	qrCmd.Flags().DurationVar(&qrInterval, "interval", 2*time.Second, "status poll interval with --wait")
	rootCmd.AddCommand(qrCmd)
}

func runQR(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newClient()
	out := cmd.OutOrStdout()

	qr, err := client.GetQR(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Session:  %s\n", qr.SessionID)
	if qrOut != "" {
		png, err := decodeDataURL(qr.QRCode)
		if err != nil {
			return err
		}
		if err := os.WriteFile(qrOut, png, 0o600); err != nil {
			return fmt.Errorf("writing QR code: %w", err)
		}
		fmt.Fprintf(out, "QR code:  %s\n", qrOut)
	} else {
		fmt.Fprintf(out, "QR code:  %s\n", qr.QRCode)
	}
	fmt.Fprintln(out, qr.Message)

	if !qrWait {
		return nil
	}
	token, err := waitForReady(ctx, client, qr.SessionID, qrInterval, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Token:    %s\n", token)
	return nil
}

// waitForReady polls check_status until the session is READY and returns its token.
func waitForReady(ctx context.Context, client *apiClient, sessionID string, interval time.Duration, out io.Writer) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		status, err := client.Status(ctx, sessionID)
		if err != nil {
			var srvErr *serverError
			if errors.As(err, &srvErr) && srvErr.Status == 404 {
				return "", fmt.Errorf("session %s ended before it was ready", sessionID)
			}
			return "", err
		}
		if status.Status != last {
			fmt.Fprintf(out, "Status:   %s\n", status.Status)
			last = status.Status
		}
		if status.Status == "READY" && status.SessionToken != nil {
			return *status.SessionToken, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func decodeDataURL(dataURL string) ([]byte, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unexpected QR code format")
	}
	return base64.StdEncoding.DecodeString(payload)
}
