package util

import (
	"log/slog"
	"time"
)

// Trace 记录耗时，用法：defer util.Trace("batch")()
func Trace(name string) func() {
	start := time.Now()
	slog.Debug("start", "name", name)
	return func() {
		slog.Info("done", "name", name, "elapsed", time.Since(start).Round(time.Millisecond))
	}
}
