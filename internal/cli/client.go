package cli

import (
	"github.com/spf13/cobra"

	"github.com/parlorchat/parlor/internal/client"
	"github.com/parlorchat/parlor/internal/config"
)

var (
	clientAddress string
	clientPort    int
)

var clientCmd = &cobra.Command{
	Use:   "client [NAME]",
	Short: "Join a chat server",
	Long: `Join a chat server as NAME. Without a name a random one is picked,
like SwiftFox42.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClient,
}

func init() {
	def := config.Default()
	clientCmd.Flags().StringVarP(&clientAddress, "address", "a", def.Server.Address, "server address to connect to")
	clientCmd.Flags().IntVarP(&clientPort, "port", "p", def.Server.Port, "server port to connect to")
	rootCmd.AddCommand(clientCmd)
}

func runClient(_ *cobra.Command, args []string) error {
	opts := client.Options{
		Address: clientAddress,
		Port:    clientPort,
	}
	if len(args) == 1 {
		opts.Name = args[0]
	}
	return client.Run(opts)
}
