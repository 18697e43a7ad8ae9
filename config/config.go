package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/chaos-io/nobg/refine"
	"github.com/chaos-io/nobg/rembg"
)

// Config 一次运行的全部配置：默认值 < 配置文件 < 命令行参数
type Config struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`

	Model        string `yaml:"model"` // 菜单编号或模型名
	AlphaMatting bool   `yaml:"alpha_matting"`
	MaskOnly     bool   `yaml:"mask_only"`

	Backend       string        `yaml:"backend"` // server | cli | none
	ServerURL     string        `yaml:"server_url"`
	ServerTimeout time.Duration `yaml:"server_timeout"`
	RembgBin      string        `yaml:"rembg_bin"`

	MaxSize      int  `yaml:"max_size"`
	SkipExisting bool `yaml:"skip_existing"`

	Schedule string `yaml:"schedule"` // watch 子命令的 cron 表达式
	Listen   string `yaml:"listen"`   // serve 子命令的监听地址

	AllowURLFetch bool `yaml:"allow_url_fetch"` // serve 是否接受 url 字段，默认关闭

	Thresholds refine.Thresholds   `yaml:"thresholds"`
	Matting    rembg.MattingParams `yaml:"matting"`
}

func Default() *Config {
	return &Config{
		InputDir:     "input",
		OutputDir:    "output",
		Model:        rembg.DefaultModel.Name,
		AlphaMatting: true,
		Backend:      rembg.BackendServer,
		ServerURL:    rembg.DefaultServerURL,
		RembgBin:     rembg.DefaultBin,
		Schedule:     "@every 1m",
		Listen:       ":8080",
		Thresholds:   refine.DefaultThresholds,
		Matting:      rembg.DefaultMatting,
	}
}

// Load 读取 YAML 配置，未出现的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, errors.New("input_dir is empty"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is empty"))
	}
	if _, ok := rembg.LookupModel(c.Model); !ok {
		errs = append(errs, fmt.Errorf("unknown model %q", c.Model))
	}
	switch c.Backend {
	case rembg.BackendServer, rembg.BackendCLI, rembg.BackendNone:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", rembg.ErrUnknownBackend, c.Backend))
	}
	if c.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("max_size must be >= 0, got %d", c.MaxSize))
	}
	if c.ServerTimeout < 0 {
		errs = append(errs, fmt.Errorf("server_timeout must be >= 0, got %s", c.ServerTimeout))
	}
	m := c.Matting
	if m.ForegroundThreshold < 0 || m.ForegroundThreshold > 255 || m.BackgroundThreshold < 0 || m.BackgroundThreshold > 255 {
		errs = append(errs, errors.New("matting thresholds must be within [0,255]"))
	}
	if m.ErodeSize < 0 {
		errs = append(errs, fmt.Errorf("matting erode_size must be >= 0, got %d", m.ErodeSize))
	}
	return errors.Join(errs...)
}

// RemoverOptions 转为 rembg 请求参数，调用前需先 Validate
func (c *Config) RemoverOptions() rembg.Options {
	model, _ := rembg.LookupModel(c.Model)
	return rembg.Options{
		Model:        model,
		AlphaMatting: c.AlphaMatting,
		MaskOnly:     c.MaskOnly,
		Matting:      c.Matting,
	}
}

func (c *Config) BackendConfig() rembg.BackendConfig {
	return rembg.BackendConfig{
		ServerURL: c.ServerURL,
		Timeout:   c.ServerTimeout,
		Bin:       c.RembgBin,
	}
}

// NewRemover 按配置创建去背景后端
func (c *Config) NewRemover() (rembg.Remover, error) {
	return rembg.New(c.Backend, c.RemoverOptions(), c.BackendConfig())
}
