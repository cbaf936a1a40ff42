package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pixelkit/bgremover/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve upload sessions over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("session-ttl", 30*time.Minute, "Drop sessions idle for longer than this (0 keeps them)")
	viper.BindPFlag("listen-addr", serveCmd.Flags().Lookup("listen-addr"))
	viper.BindPFlag("session-ttl", serveCmd.Flags().Lookup("session-ttl"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h := server.NewHandler(sessionFactory(cfg, nil), cfg.MaxFileSize, cfg.SessionTTL)
	return server.New(cfg.ListenAddr, h).Run(ctx)
}
