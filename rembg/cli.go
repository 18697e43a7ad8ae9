package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

const DefaultBin = "rembg"

// CLIRemover 调用本地安装的 rembg 命令，图片经 stdin/stdout 传递
type CLIRemover struct {
	bin  string
	opts Options
}

func NewCLIRemover(bin string, opts Options) *CLIRemover {
	if bin == "" {
		bin = DefaultBin
	}
	return &CLIRemover{bin: bin, opts: opts}
}

func (c *CLIRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, c.args()...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("run rembg", "bin", c.bin, "args", cmd.Args[1:])
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("run %s: %w: %s", c.bin, err, strings.TrimSpace(stderr.String()))
	}

	return decodeImage(stdout.Bytes())
}

// args rembg i -m u2net -a -af 240 -ab 10 -ae 10 -om - -
func (c *CLIRemover) args() []string {
	args := []string{"i", "-m", c.opts.Model.Name}
	if c.opts.AlphaMatting {
		args = append(args,
			"-a",
			"-af", strconv.Itoa(c.opts.Matting.ForegroundThreshold),
			"-ab", strconv.Itoa(c.opts.Matting.BackgroundThreshold),
			"-ae", strconv.Itoa(c.opts.Matting.ErodeSize),
		)
	}
	if c.opts.MaskOnly {
		args = append(args, "-om")
	}
	return append(args, "-", "-")
}
