package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pixelkit/bgremover/internal/config"
)

// LogLevel is shared with the default logger so --log-level applies after flags are parsed
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "bgremover",
	Short: "Remove image backgrounds and add borders through a processing service",
	Long: `Sends images to a background-removal service, optionally composites a
colored border through the same service, and saves the result as processed-image.png.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := config.ParseLogLevel(viper.GetString("log-level"))
		if err != nil {
			return err
		}
		LogLevel.Set(level)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("service-url", "http://localhost:5000", "Processing service base URL")
	rootCmd.PersistentFlags().Bool("simulate", false, "Use the offline simulator instead of the service")
	rootCmd.PersistentFlags().Duration("simulate-delay", 2*time.Second, "Simulated processing delay")
	rootCmd.PersistentFlags().Int64("max-file-size", 5*1024*1024, "Max image size in bytes")
	rootCmd.PersistentFlags().String("output-dir", ".", "Directory downloads are saved to")
	rootCmd.PersistentFlags().String("s3-bucket", "", "Save downloads to this S3 bucket instead of output-dir")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix for downloads")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "Custom S3-compatible endpoint")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	for _, name := range []string{
		"service-url", "simulate", "simulate-delay", "max-file-size", "output-dir",
		"s3-bucket", "s3-region", "s3-prefix", "s3-endpoint", "log-level",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}
