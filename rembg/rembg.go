package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"
)

const (
	BackendServer = "server" // rembg s 启动的 HTTP 服务
	BackendCLI    = "cli"    // 本地 rembg 命令
	BackendNone   = "none"   // 不去背景，只做透明度修正
)

var ErrUnknownBackend = errors.New("unknown rembg backend")

// Remover 前景/背景分割，返回带 alpha 的图片
// MaskOnly 时可能返回灰度蒙版
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// MattingParams alpha matting 参数
type MattingParams struct {
	ForegroundThreshold int `yaml:"foreground_threshold" json:"foreground_threshold"`
	BackgroundThreshold int `yaml:"background_threshold" json:"background_threshold"`
	ErodeSize           int `yaml:"erode_size" json:"erode_size"`
}

var DefaultMatting = MattingParams{
	ForegroundThreshold: 240,
	BackgroundThreshold: 10,
	ErodeSize:           10,
}

// Options 一次批处理对模型的请求参数
type Options struct {
	Model        Model
	AlphaMatting bool
	MaskOnly     bool
	Matting      MattingParams
}

func DefaultOptions() Options {
	return Options{
		Model:        DefaultModel,
		AlphaMatting: true,
		Matting:      DefaultMatting,
	}
}

// BackendConfig 各后端自己的连接参数
type BackendConfig struct {
	ServerURL string        // BackendServer
	Timeout   time.Duration // BackendServer，单张图推理超时
	Bin       string        // BackendCLI
}

// New 根据后端名称创建 Remover
func New(backend string, opts Options, cfg BackendConfig) (Remover, error) {
	switch backend {
	case BackendServer:
		return NewServerRemover(cfg.ServerURL, opts, cfg.Timeout), nil
	case BackendCLI:
		return NewCLIRemover(cfg.Bin, opts), nil
	case BackendNone:
		return NewNopRemover(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// NopRemover 原样返回
type NopRemover struct{}

func NewNopRemover() *NopRemover {
	return &NopRemover{}
}

func (d *NopRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return img, nil
}

// encodePNG 模型只吃文件，先统一编码为 PNG
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return img, nil
}
