package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/keagan/reelscope/internal/analysis"
	"github.com/keagan/reelscope/internal/api"
	"github.com/keagan/reelscope/internal/config"
	"github.com/keagan/reelscope/internal/logging"
	"github.com/keagan/reelscope/internal/pipeline"
	"github.com/keagan/reelscope/internal/upload"
	"github.com/keagan/reelscope/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	platformName  string
	maxThumbnails int
	singlePass    bool
	outDir        string
	showProgress  bool
	skipLimits    bool
	serveAddr     string
)

// cliReport is what analyze prints to stdout.
type cliReport struct {
	Metrics    analysis.Metrics `json:"metrics"`
	Thumbnails []string         `json:"thumbnails,omitempty"`
	Files      []string         `json:"files,omitempty"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Compute content metrics and thumbnails for a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		input := args[0]

		platform, err := parsePlatform(platformName)
		if err != nil {
			return err
		}
		limits := uploadLimits(cfg)
		if !skipLimits {
			if err := limits.CheckExtension(input); err != nil {
				return err
			}
			if err := limits.CheckSize(input); err != nil {
				return err
			}
		}

		pipe, err := newPipeline(cfg, cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		info, err := pipe.Probe(cmd.Context(), input)
		if err != nil {
			return err
		}
		if !skipLimits {
			if _, err := limits.CheckDuration(info.FPS, info.TotalFrames); err != nil {
				return err
			}
		}

		opts := pipeline.AnalyzeOptions{
			Platform:      platform,
			MaxThumbnails: maxThumbnails,
		}
		bar := progressHook(&opts, "Analyzing")

		report, err := pipe.AnalyzeInfo(cmd.Context(), info, opts)
		if bar != nil {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return err
		}

		out := cliReport{Metrics: report.Metrics.Rounded()}
		if outDir != "" {
			out.Files, err = writeThumbnails(outDir, report.Thumbnails)
			if err != nil {
				return err
			}
		} else {
			for _, t := range report.Thumbnails {
				out.Thumbnails = append(out.Thumbnails, t.Base64())
			}
		}

		log.Info().
			Str("input", input).
			Str("duration", util.FormatDuration(info.Duration)).
			Int("hard_cuts", report.Metrics.HardCutCount).
			Int("thumbnails", len(report.Thumbnails)).
			Msg("analysis complete")

		return printJSON(out)
	},
}

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails [input video]",
	Short: "Extract the sharpest distinct frames as JPEG files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		platform, err := parsePlatform(platformName)
		if err != nil {
			return err
		}
		dir := outDir
		if dir == "" {
			dir = filepath.Join(cfg.WorkDir, "thumbnails")
		}

		pipe, err := newPipeline(cfg, cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		opts := pipeline.AnalyzeOptions{Platform: platform, MaxThumbnails: maxThumbnails}
		bar := progressHook(&opts, "Scanning")
		thumbs, err := pipe.Thumbnails(cmd.Context(), args[0], opts)
		if bar != nil {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return err
		}

		files, err := writeThumbnails(dir, thumbs)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [input video]",
	Short: "Print container metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := newPipeline(cfg, cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		info, err := pipe.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(info)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		pipe, err := newPipeline(cfg, cmd)
		if err != nil {
			return err
		}
		defer pipe.Close()

		server := api.NewServer(api.ServerConfig{
			Addr:           addr,
			Analyzer:       pipe,
			Limits:         uploadLimits(cfg),
			TempDir:        cfg.TempDir,
			MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			RequestTimeout: cfg.Server.RequestTimeout,
			Logger:         logging.WithComponent("api"),
			StartTime:      time.Now(),
			Version:        version,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "reelscope.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{analyzeCmd, thumbnailsCmd} {
		c.Flags().StringVarP(&platformName, "platform", "p", string(analysis.YouTube),
			"target platform crop ("+strings.Join(platformNames(), ", ")+")")
		c.Flags().IntVarP(&maxThumbnails, "max-thumbnails", "n", 0, "maximum thumbnails to keep (0 uses the configured limit)")
		c.Flags().BoolVar(&singlePass, "single-pass", false, "decode once and feed every analyzer")
		c.Flags().StringVarP(&outDir, "out-dir", "o", "", "write thumbnails as JPEG files to this directory")
		c.Flags().BoolVar(&showProgress, "progress", false, "show a progress bar on stderr")
	}
	analyzeCmd.Flags().BoolVar(&skipLimits, "no-limits", false, "skip upload format, size and duration checks")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func newPipeline(cfg *config.Config, cmd *cobra.Command) (*pipeline.Pipeline, error) {
	pipeCfg := &pipeline.Config{
		Concurrency: cfg.Concurrency,
		SinglePass:  cfg.Analysis.SinglePass,
	}
	if cmd.Flags().Changed("single-pass") {
		pipeCfg.SinglePass = singlePass
	}
	return pipeline.New(log.Logger, pipeCfg, cfg)
}

func uploadLimits(cfg *config.Config) upload.Limits {
	return upload.Limits{
		AllowedExtensions:  cfg.Limits.AllowedExtensions,
		MaxFileSizeMB:      cfg.Limits.MaxFileSizeMB,
		MaxDurationSeconds: cfg.Limits.MaxDurationSeconds,
	}
}

func platformNames() []string {
	var names []string
	for _, p := range analysis.Platforms() {
		names = append(names, string(p))
	}
	return names
}

func parsePlatform(name string) (analysis.Platform, error) {
	if err := upload.CheckPlatform(name, platformNames()); err != nil {
		return "", err
	}
	p, _ := analysis.ParsePlatform(name)
	return p, nil
}

// progressHook installs a terminal bar on opts when --progress is set.
func progressHook(opts *pipeline.AnalyzeOptions, desc string) *progressbar.ProgressBar {
	if !showProgress {
		return nil
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
	)
	opts.Progress = func(done, total int) {
		if total > 0 && bar.GetMax() != total {
			bar.ChangeMax(total)
		}
		bar.Set(done)
	}
	return bar
}

func writeThumbnails(dir string, thumbs []analysis.Thumbnail) ([]string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	files := make([]string, 0, len(thumbs))
	for i, t := range thumbs {
		path := filepath.Join(dir, fmt.Sprintf("thumb_%02d.jpg", i+1))
		if err := os.WriteFile(path, t.Data, 0644); err != nil {
			return files, fmt.Errorf("write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
