package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/chaos-io/nobg/batch"
	"github.com/chaos-io/nobg/config"
	"github.com/chaos-io/nobg/prompt"
	"github.com/chaos-io/nobg/rembg"
)

const banner = "============================================================"

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "%s\nBACKGROUND REMOVAL TOOL\n%s\n", banner, banner)

	if err := batch.EnsureDirs(cfg.InputDir, cfg.OutputDir); err != nil {
		return err
	}
	files, err := batch.Scan(cfg.InputDir)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		_, _ = fmt.Fprintf(out, "\nNo images found in '%s' folder!\n", cfg.InputDir)
		_, _ = fmt.Fprintf(out, "\nPlace your images in the '%s' folder and run this again.\n", cfg.InputDir)
		_, _ = fmt.Fprintf(out, "\nSupported formats: %s\n", strings.Join(batch.SupportedFormats, ", "))
		return nil
	}
	_, _ = fmt.Fprintf(out, "\nFound %d image(s) to process\n", len(files))

	if interactive(cmd) {
		p := prompt.New(cmd.InOrStdin(), out)
		model, err := p.SelectModel(cmd.Context())
		if err != nil {
			return err
		}
		cfg.Model = model.Name
		if cfg.AlphaMatting, cfg.MaskOnly, err = p.SelectOptions(cmd.Context()); err != nil {
			return err
		}
	}

	opts := cfg.RemoverOptions()
	printChoices(out, opts)

	remover, err := cfg.NewRemover()
	if err != nil {
		return err
	}

	summary, err := newDriver(cfg, remover, out).Run(cmd.Context(), files)
	if err != nil {
		return err
	}

	printSummary(out, cfg, summary)
	return nil
}

func newDriver(cfg *config.Config, remover rembg.Remover, out io.Writer) *batch.Driver {
	d := batch.NewDriver(remover, cfg.OutputDir)
	d.Thresholds = cfg.Thresholds
	d.MaxSize = cfg.MaxSize
	d.SkipExisting = cfg.SkipExisting
	d.Out = out
	return d
}

// interactive 参数没给出选择、且输入是终端时才询问
func interactive(cmd *cobra.Command) bool {
	if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt || selectionGiven(cmd) {
		return false
	}
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return true
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printChoices(out io.Writer, opts rembg.Options) {
	_, _ = fmt.Fprintf(out, "\n%s\nProcessing with model: %s\n", banner, opts.Model.Name)
	if opts.AlphaMatting {
		_, _ = fmt.Fprintln(out, "   Alpha matting enabled (smoother edges)")
	}
	if opts.MaskOnly {
		_, _ = fmt.Fprintln(out, "   Saving mask only")
	}
	_, _ = fmt.Fprintln(out, banner)
}

func printSummary(out io.Writer, cfg *config.Config, s *batch.Summary) {
	_, _ = fmt.Fprintf(out, "\n%s\nPROCESSING COMPLETE\n%s\n", banner, strings.Repeat("-", len(banner)))
	_, _ = fmt.Fprintf(out, "Successful: %d\n", s.Succeeded)
	if s.Failed > 0 {
		_, _ = fmt.Fprintf(out, "Failed: %d\n", s.Failed)
	}
	if s.Skipped > 0 {
		_, _ = fmt.Fprintf(out, "Skipped: %d\n", s.Skipped)
	}
	_, _ = fmt.Fprintf(out, "Total time: %.1fs\n", s.Elapsed.Seconds())

	if s.Succeeded == 0 {
		return
	}
	dir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		dir = cfg.OutputDir
	}
	_, _ = fmt.Fprintf(out, "\nOutput files saved to: %s\n", dir)
	_, _ = fmt.Fprintln(out, "\nTip: Images are saved with full transparency.")
	_, _ = fmt.Fprintln(out, "   If backgrounds still appear, try:")
	_, _ = fmt.Fprintln(out, "   - Different quality level (option 5 for best quality)")
	_, _ = fmt.Fprintln(out, "   - Enable alpha matting if disabled")
}
