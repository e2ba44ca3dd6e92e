// Package cli defines the parlor command tree: a server subcommand that
// runs the chat service and a client subcommand that joins one.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parlor",
	Short: "A small chat service over WebSockets",
	Long: `Parlor is a chat service: one server fans every message out to all
connected clients, with join and leave notices and a live user list.

Run "parlor server" to host a room and "parlor client" to join one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and reports the outcome to the caller.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
