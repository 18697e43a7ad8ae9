package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/chaos-io/nobg/batch"
	"github.com/chaos-io/nobg/config"
	"github.com/chaos-io/nobg/rembg"
	"github.com/chaos-io/nobg/util"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process new images in the input folder on a cron schedule",
		RunE:  runWatch,
	}
	cmd.Flags().String("schedule", "", "cron spec or @every duration (default \"@every 1m\")")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("schedule") {
		cfg.Schedule, _ = cmd.Flags().GetString("schedule")
	}
	// 已经处理过的不再重复跑模型
	cfg.SkipExisting = true

	if err := batch.EnsureDirs(cfg.InputDir, cfg.OutputDir); err != nil {
		return err
	}
	remover, err := cfg.NewRemover()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := cron.VerbosePrintfLogger(log.New(os.Stderr, "cron: ", log.LstdFlags))

	// SkipIfStillRunning 保证同一时刻只有一轮批处理
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(cfg.Schedule, func() { watchOnce(ctx, cfg, remover, out) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	_, _ = fmt.Fprintf(out, "Watching '%s' (%s), writing to '%s'. Press Ctrl+C to stop.\n", cfg.InputDir, cfg.Schedule, cfg.OutputDir)
	watchOnce(ctx, cfg, remover, out)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// watchOnce 扫描一次输入目录并处理新图片
func watchOnce(ctx context.Context, cfg *config.Config, remover rembg.Remover, out io.Writer) {
	if ctx.Err() != nil {
		return
	}
	defer util.Trace("watch batch")()

	files, err := batch.Scan(cfg.InputDir)
	if err != nil {
		slog.Error("scan input dir failed", "dir", cfg.InputDir, "error", err)
		return
	}
	if len(files) == 0 {
		return
	}

	summary, err := newDriver(cfg, remover, out).Run(ctx, files)
	if err != nil && !errors.Is(err, batch.ErrInterrupted) {
		slog.Error("watch batch failed", "error", err)
		return
	}
	if summary.Succeeded+summary.Failed > 0 {
		_, _ = fmt.Fprintf(out, "\nProcessed %d, failed %d, skipped %d (%.1fs)\n",
			summary.Succeeded, summary.Failed, summary.Skipped, summary.Elapsed.Seconds())
	}
}
