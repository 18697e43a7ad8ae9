package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaos-io/nobg/config"
)

// loadConfig 默认值 < 配置文件 < 命令行参数
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("input") {
		cfg.InputDir, _ = flags.GetString("input")
	}
	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("alpha-matting") {
		cfg.AlphaMatting, _ = flags.GetBool("alpha-matting")
	}
	if flags.Changed("mask-only") {
		cfg.MaskOnly, _ = flags.GetBool("mask-only")
	}
	if flags.Changed("backend") {
		cfg.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("server-url") {
		cfg.ServerURL, _ = flags.GetString("server-url")
	}
	if flags.Changed("rembg-bin") {
		cfg.RembgBin, _ = flags.GetString("rembg-bin")
	}
	if flags.Changed("max-size") {
		cfg.MaxSize, _ = flags.GetInt("max-size")
	}
	if flags.Changed("skip-existing") {
		cfg.SkipExisting, _ = flags.GetBool("skip-existing")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// selectionGiven 模型或选项已经通过参数/配置文件给出时不再询问
func selectionGiven(cmd *cobra.Command) bool {
	flags := cmd.Flags()
	if flags.Changed("config") {
		return true
	}
	for _, name := range []string{"model", "alpha-matting", "mask-only"} {
		if flags.Changed(name) {
			return true
		}
	}
	return false
}
