package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	bulkCount   int
	bulkDelay   time.Duration
	bulkNumbers string
)

var bulkCmd = &cobra.Command{
	Use:   "bulk [phone-number] [message]",
	Short: "Send the same text repeatedly or to a list of numbers",
	Long: `Send the same text message several times with a pause between sends.

Without --numbers the message goes --count times to the given number. With
--numbers it goes once to every number in the file (one per line, # comments
allowed) and the phone-number argument is omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBulk,
}

func init() {
	bulkCmd.Flags().IntVarP(&bulkCount, "count", "n", 10, "number of messages to send")
	bulkCmd.Flags().DurationVarP(&bulkDelay, "delay", "d", time.Second, "pause between messages")
	bulkCmd.Flags().StringVar(&bulkNumbers, "numbers", "", "file with one phone number per line")
	rootCmd.AddCommand(bulkCmd)
}

func runBulk(cmd *cobra.Command, args []string) error {
	var targets []string
	var message string

	if bulkNumbers != "" {
		if len(args) != 1 {
			return fmt.Errorf("with --numbers pass only the message")
		}
		message = args[0]
		numbers, err := readNumbers(bulkNumbers)
		if err != nil {
			return err
		}
		targets = numbers
	} else {
		if len(args) != 2 {
			return fmt.Errorf("pass a phone number and a message")
		}
		if bulkCount < 1 {
			return fmt.Errorf("--count must be at least 1")
		}
		message = args[1]
		for i := 0; i < bulkCount; i++ {
			targets = append(targets, args[0])
		}
	}

	sent, failed := sendBulk(cmd.Context(), newClient(), targets, message, bulkDelay, cmd.OutOrStdout())
	if failed > 0 {
		return fmt.Errorf("%d of %d messages failed", failed, sent+failed)
	}
	return nil
}

// sendBulk sends message to every target in order and reports the counts. A
// failed send does not stop the run.
func sendBulk(ctx context.Context, client *apiClient, targets []string, message string, delay time.Duration, out io.Writer) (int, int) {
	sent, failed := 0, 0
	for i, phone := range targets {
		fmt.Fprintf(out, "--- Sending message %d/%d to %s ---\n", i+1, len(targets), phone)

		if result, err := client.SendForm(ctx, phone, message); err != nil {
			fmt.Fprintf(out, "failed: %v\n", err)
			failed++
		} else {
			fmt.Fprintf(out, "sent: %s\n", strings.Join(result.MessageIDs, ", "))
			sent++
		}

		if i < len(targets)-1 && delay > 0 {
			select {
			case <-ctx.Done():
				failed += len(targets) - i - 1
				return sent, failed
			case <-time.After(delay):
			}
		}
	}

	fmt.Fprintf(out, "Sent: %d  Failed: %d\n", sent, failed)
	return sent, failed
}

func readNumbers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var numbers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		numbers = append(numbers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, fmt.Errorf("%s lists no phone numbers", path)
	}
	return numbers, nil
}
