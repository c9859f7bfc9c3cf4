package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	sendMedia []string
	sendFile  string
)

var sendCmd = &cobra.Command{
	Use:   "send [phone-number] [message]",
	Short: "Send a text, remote media or a local file",
	Long: `Send a message through the session the token belongs to.

Example:
  wagatectl send 911234567890 "hello"
  wagatectl send 911234567890 "see attached" --media https://example.com/a.png --media https://example.com/b.png
  wagatectl send 911234567890 "report" --file ./report.pdf`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringArrayVarP(&sendMedia, "media", "m", nil, "remote media URL (repeatable)")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "local file to upload")
	sendCmd.MarkFlagsMutuallyExclusive("media", "file")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	phone := args[0]
	message := ""
	if len(args) > 1 {
		message = args[1]
	}

	client := newClient()
	var (
		result *sendResult
		err    error
	)
	if sendFile != "" {
		result, err = client.SendFile(cmd.Context(), phone, message, sendFile)
	} else {
		result, err = client.SendJSON(cmd.Context(), phone, message, sendMedia)
	}
	if err != nil {
		return err
	}

	printSendResult(cmd.OutOrStdout(), result)
	return nil
}

func printSendResult(out io.Writer, result *sendResult) {
	for _, r := range result.Results {
		if r.Error != nil {
			fmt.Fprintf(out, "[%d] failed: %s (%s)\n", r.Index, r.Error.Message, r.Error.Code)
			continue
		}
		fmt.Fprintf(out, "[%d] sent: %s\n", r.Index, r.MessageID)
	}
}
