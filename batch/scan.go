package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SupportedFormats 支持的输入扩展名（不区分大小写）
var SupportedFormats = []string{".bmp", ".jpeg", ".jpg", ".png", ".tiff", ".webp"}

const outputSuffix = "_no_bg.png"

// IsSupported 判断扩展名是否可处理
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range SupportedFormats {
		if ext == f {
			return true
		}
	}
	return false
}

// Scan 返回 dir 下所有可处理的图片，按文件名排序，不递归
// 符号链接跟随到目标，指向普通文件才算；断链和指向目录的链接跳过
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !IsSupported(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if !isFile(e, path) {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

func isFile(e os.DirEntry, path string) bool {
	if e.Type()&os.ModeSymlink == 0 {
		return e.Type().IsRegular()
	}
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// OutputName <原文件名去扩展名>_no_bg.png
func OutputName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + outputSuffix
}

// EnsureDirs 输入、输出目录不存在时创建
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}
