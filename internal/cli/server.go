package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/logging"
	"github.com/parlorchat/parlor/internal/server"
	"github.com/parlorchat/parlor/internal/tui"
)

const shutdownTimeout = 10 * time.Second

var (
	serverAddress string
	serverPort    int
	serverConfig  string
	serverTUI     bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the chat server",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	def := config.Default()
	serverCmd.Flags().StringVarP(&serverAddress, "address", "a", def.Server.Address, "address to bind to")
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", def.Server.Port, "port to listen on")
	serverCmd.Flags().StringVar(&serverConfig, "config", "", "path to a YAML config file")
	serverCmd.Flags().BoolVar(&serverTUI, "tui", false, "show the live dashboard instead of plain logs")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serverConfig)
	if err != nil {
		return err
	}
	// Flags win over file and environment, but only when actually set.
	if cmd.Flags().Changed("address") {
		cfg.Server.Address = serverAddress
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	srv := server.New(cfg, log)

	// The dashboard taps the hub before it starts so no events are missed.
	var tap <-chan server.Event
	if serverTUI {
		tap = srv.Hub().Tap(64)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	var tuiDone chan error
	if serverTUI {
		tuiDone = make(chan error, 1)
		go func() {
			tuiDone <- tui.Run(srv.Hub(), tap, cfg.ListenAddr())
		}()
	}

	select {
	case err := <-serveErr:
		// Bind or accept failure; nothing to shut down gracefully.
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-tuiDone:
		if err != nil {
			log.Warn("dashboard exited with error", "err", err)
		}
	}

	return srv.Shutdown(shutdownTimeout)
}
