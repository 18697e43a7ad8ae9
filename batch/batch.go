package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nfnt/resize"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/nobg/refine"
	"github.com/chaos-io/nobg/rembg"
	"github.com/chaos-io/nobg/util"
)

// ErrInterrupted 批处理被外部信号中断，与单张图片失败区分
var ErrInterrupted = errors.New("batch interrupted")

// Result 单张图片的处理结果
type Result struct {
	Input   string
	Output  string
	Elapsed time.Duration
	Skipped bool
	Err     error
}

// Summary 一次批处理的统计
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
	Results   []Result
}

// Driver 逐张处理：解码 → 去背景 → 透明度修正 → 写 PNG
// 严格串行，一张图完成后才开始下一张
type Driver struct {
	Remover    rembg.Remover
	Thresholds refine.Thresholds
	OutputDir  string

	MaxSize      int  // 送入模型前最长边上限，0 表示不缩放
	SkipExisting bool // 输出已存在时跳过

	Out io.Writer // 进度输出
}

func NewDriver(remover rembg.Remover, outputDir string) *Driver {
	return &Driver{
		Remover:    remover,
		Thresholds: refine.DefaultThresholds,
		OutputDir:  outputDir,
		Out:        io.Discard,
	}
}

// Run 依次处理 files；单张失败只计数不中断
// ctx 被取消时立即返回已完成部分的统计和 ErrInterrupted
func (d *Driver) Run(ctx context.Context, files []string) (*Summary, error) {
	summary := &Summary{Total: len(files)}
	start := time.Now()
	defer func() {
		summary.Elapsed = time.Since(start)
	}()

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}

		name := filepath.Base(path)
		outPath := filepath.Join(d.OutputDir, OutputName(path))

		if d.SkipExisting && exists(outPath) {
			_, _ = fmt.Fprintf(d.out(), "\n[%d/%d] Skipped: %s (output exists)", i+1, len(files), name)
			summary.Skipped++
			summary.Results = append(summary.Results, Result{Input: path, Output: outPath, Skipped: true})
			continue
		}

		_, _ = fmt.Fprintf(d.out(), "\n[%d/%d] Processing: %s...", i+1, len(files), name)
		t := time.Now()
		err := d.Process(ctx, path, outPath)
		res := Result{Input: path, Output: outPath, Elapsed: time.Since(t), Err: err}

		if err != nil && ctx.Err() != nil {
			_, _ = fmt.Fprintln(d.out(), " Interrupted")
			return summary, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}

		if err != nil {
			_, _ = fmt.Fprintf(d.out(), " Failed: %v\n", err)
			slog.Error("process image failed", "file", name, "error", err)
			res.Output = ""
			summary.Failed++
		} else {
			_, _ = fmt.Fprintf(d.out(), " Done (%.1fs)\n", res.Elapsed.Seconds())
			slog.Debug("processed image", "file", name, "output", outPath, "elapsed", res.Elapsed)
			summary.Succeeded++
		}
		summary.Results = append(summary.Results, res)
	}

	return summary, nil
}

// Process 处理单张图片并写到 outPath
func (d *Driver) Process(ctx context.Context, path, outPath string) error {
	img, err := util.OpenImage(path)
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	if d.MaxSize > 0 {
		img = resizeWithinMax(img, d.MaxSize)
	}

	removed, err := d.Remover.Remove(ctx, img)
	if err != nil {
		return fmt.Errorf("remove background: %w", err)
	}

	// 模型输出可能是 RGBA 也可能是灰度蒙版，统一转 NRGBA
	out := refine.ToNRGBA(removed)
	if !refine.HasTransparency(out) {
		slog.Debug("mask provider returned a fully opaque image", "file", filepath.Base(path))
	}
	out = d.Thresholds.Refine(out)

	return writePNG(out, outPath)
}

// writePNG 先写临时文件再 rename，中断时不会留下半个输出
// image/png 按内容选颜色类型：有透明像素写 RGBA(6)，全不透明写 RGB(2)，像素值不变
func writePNG(img image.Image, outPath string) (err error) {
	dir := filepath.Dir(outPath)
	tmp := filepath.Join(dir, "."+ksuid.New().String()+".tmp")

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err = enc.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(tmp, outPath); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// resizeWithinMax 缩放（最长边 <= maxSize）
func resizeWithinMax(img image.Image, maxSize int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	return resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (d *Driver) out() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}
