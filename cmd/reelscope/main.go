package main

import (
	"context"
	"os"

	"github.com/keagan/reelscope/internal/config"
	"github.com/keagan/reelscope/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reelscope",
	Short:   "reelscope - short-form video content analysis",
	Long:    "Measures hard cuts, motion and on-screen text in a video and picks platform-cropped thumbnails.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Initialize logging
		logging.Init(logging.Options{
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
			Verbose: verbose,
		})

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./reelscope.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(thumbnailsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
