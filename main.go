package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaos-io/nobg/batch"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nobg",
		Short:         "Batch remove image backgrounds and clean up transparency",
		RunE:          runBatch,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogger(verbose)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML config file")
	flags.StringP("input", "i", "", "Input folder (default \"input\")")
	flags.StringP("output", "o", "", "Output folder (default \"output\")")
	flags.StringP("model", "m", "", "Model preset: 1-5 or a model name (default u2net)")
	flags.Bool("alpha-matting", true, "Enable alpha matting for smoother edges")
	flags.Bool("mask-only", false, "Save the black/white mask only")
	flags.String("backend", "", "Mask provider backend: server, cli or none (default server)")
	flags.String("server-url", "", "rembg server base URL")
	flags.String("rembg-bin", "", "rembg executable for the cli backend")
	flags.Int("max-size", 0, "Downscale inputs so the longest side is at most this many pixels (0 keeps size)")
	flags.Bool("skip-existing", false, "Skip inputs whose output file already exists")
	flags.BoolP("verbose", "v", false, "Debug logging")
	rootCmd.Flags().Bool("no-prompt", false, "Never ask interactively, use flags and config only")

	rootCmd.AddCommand(newWatchCmd(), newServeCmd(), newModelsCmd())
	return rootCmd
}

func setupLogger(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitCode 中断和其他错误提示不同，退出码都是 1
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, batch.ErrInterrupted) || errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "\n\nProcess interrupted by user")
		return 1
	default:
		fmt.Fprintf(os.Stderr, "\nUnexpected error: %v\n", err)
		return 1
	}
}
