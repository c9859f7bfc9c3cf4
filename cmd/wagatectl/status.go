package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Get the status of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [session-id]",
	Short: "End a session and revoke its token",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := newClient().Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:  %s\n", status.SessionID)
	fmt.Fprintf(out, "Status:   %s\n", status.Status)
	fmt.Fprintf(out, "Message:  %s\n", status.Message)
	if status.SessionToken != nil {
		fmt.Fprintf(out, "Token:    %s\n", *status.SessionToken)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := newClient().Logout(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s disconnected\n", args[0])
	return nil
}
