package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pbdl/pinterest-board-downloader/internal/api"
	"github.com/pbdl/pinterest-board-downloader/internal/config"
	"github.com/pbdl/pinterest-board-downloader/internal/controllers"
	"github.com/pbdl/pinterest-board-downloader/internal/metrics"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/pbdl/pinterest-board-downloader/internal/scheduler"
	"github.com/pbdl/pinterest-board-downloader/internal/services/pinterest"
	"github.com/pbdl/pinterest-board-downloader/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

// errDownloadsFailed marks a run that finished with permanent failures
var errDownloadsFailed = errors.New("some downloads failed")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status: 1 for runs that
// started but did not fully succeed, 2 for usage and startup problems
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var upstreamErr *models.UpstreamError
	switch {
	case errors.Is(err, errDownloadsFailed),
		errors.Is(err, context.Canceled),
		errors.As(err, &upstreamErr):
		return 1
	}
	return 2
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pinterest-board-downloader <board>",
		Short: "Download every image and video on a public Pinterest board",
		Long: `pinterest-board-downloader walks a public Pinterest board page by page
and downloads its images and videos into a per-board directory. Re-running
the same board skips everything already on disk, so interrupted runs can
simply be restarted.

The board can be given as a full URL or as owner/board-slug.`,
		Example: `  pinterest-board-downloader jane/summer-trip
  pinterest-board-downloader https://www.pinterest.com/jane/summer-trip/ -o ~/Pictures
  pinterest-board-downloader watch jane/summer-trip jane/travel --interval 1h`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBoard,
	}

	flags := root.PersistentFlags()
	flags.StringP("output", "o", "images", "root output directory")
	flags.IntP("concurrency", "c", 4, "concurrent downloads")
	flags.Int("retries", 3, "retries per file after the first attempt")
	flags.StringP("quality", "q", "prioritize-high", "variant preference: high-only, prioritize-high or all")
	flags.Duration("page-delay", 500*time.Millisecond, "pause between feed page fetches")
	flags.Duration("timeout", 60*time.Second, "per-attempt download timeout")
	flags.String("exclude-file", "", "file with one exclusion pattern per line")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	root.AddCommand(newWatchCommand(), newVersionCommand())
	return root
}

func newWatchCommand() *cobra.Command {
	watch := &cobra.Command{
		Use:   "watch <board> [board...]",
		Short: "Re-sync boards on an interval and serve status endpoints",
		Long: `watch keeps the given boards in sync: every interval it walks each board
again and downloads whatever was pinned since the last pass. While running
it serves /health, /status and /metrics for monitoring.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runWatch,
	}

	watch.Flags().Duration("interval", 30*time.Minute, "time between sync passes")
	watch.Flags().String("listen", "8080", "port for the status and metrics server")
	return watch
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pinterest-board-downloader " + version)
		},
	}
}

// loadConfig loads the environment-driven configuration and overlays the
// flags that were explicitly set, so flags beat environment variables
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("retries") {
		cfg.MaxRetries, _ = flags.GetInt("retries")
	}
	if flags.Changed("quality") {
		raw, _ := flags.GetString("quality")
		quality, err := models.ParseQualityPref(raw)
		if err != nil {
			return nil, err
		}
		cfg.Quality = quality
	}
	if flags.Changed("page-delay") {
		cfg.PageDelay, _ = flags.GetDuration("page-delay")
	}
	if flags.Changed("timeout") {
		cfg.DownloadTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("exclude-file") {
		cfg.ExcludeFile, _ = flags.GetString("exclude-file")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("interval") {
		cfg.WatchInterval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("listen") {
		cfg.ServerPort, _ = flags.GetString("listen")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildSync wires the full download stack from configuration
func buildSync(cfg *config.Config, logger *logrus.Logger) (*controllers.SyncController, *metrics.Metrics, error) {
	client, err := pinterest.NewClient(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Pinterest client: %w", err)
	}

	resolver, err := controllers.NewMediaResolver(cfg.Quality, logger)
	if err != nil {
		return nil, nil, err
	}

	m := metrics.New()
	cleanupCtrl := controllers.NewCleanupController(logger)
	syncCtrl := controllers.NewSyncController(client, resolver, cleanupCtrl, cfg, m, logger)
	return syncCtrl, m, nil
}

// loadExclusions loads the configured exclusion list, falling back to an
// empty one when the file cannot be read
func loadExclusions(cfg *config.Config, logger *logrus.Logger) *utils.ExclusionList {
	exclude, err := utils.LoadExclusionList(cfg.ExcludeFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load exclusion list, continuing without it")
		return utils.NewExclusionList(nil)
	}
	if exclude.Len() > 0 {
		logger.WithField("patterns", exclude.Len()).Info("Exclusion list loaded")
	}
	return exclude
}

// signalContext returns a context canceled by the first interrupt. A
// second interrupt kills the process the default way.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

func runBoard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ref, err := pinterest.ParseBoardRef(args[0])
	if err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.LogLevel)
	exclude := loadExclusions(cfg, logger)

	syncCtrl, _, err := buildSync(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	summary, err := syncCtrl.SyncBoard(ctx, ref, exclude)
	if err != nil && controllers.IsStartupError(err) {
		return err
	}

	fmt.Printf("Summary: %s\n", summary)

	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return errDownloadsFailed
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	refs := make([]models.BoardRef, 0, len(args))
	for _, arg := range args {
		ref, err := pinterest.ParseBoardRef(arg)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	logger.WithField("version", version).Info("Starting Pinterest board downloader")
	exclude := loadExclusions(cfg, logger)

	syncCtrl, m, err := buildSync(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	sched := scheduler.NewScheduler(syncCtrl, refs, exclude, cfg.WatchInterval, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := api.NewServer(cfg, sched, m, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	logger.WithField("boards", len(refs)).Info("Watch mode running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Pinterest board downloader stopped")
	return nil
}
