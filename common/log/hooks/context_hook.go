package hooks

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// contextHook adds the caller's file:line to every entry.
type contextHook struct{}

func NewContextHook() log.Hook {
	return contextHook{}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isLoggingFrame(frame) {
			entry.Data["file:line"] = fmt.Sprintf("%s:%d", shortPath(frame.File), frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isLoggingFrame(f runtime.Frame) bool {
	return strings.Contains(f.Function, "sirupsen/logrus") || strings.HasSuffix(f.File, "context_hook.go")
}

// shortPath keeps the package directory and file name.
func shortPath(file string) string {
	dir, name := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), name)
}
