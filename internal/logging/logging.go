// Package logging provides the leveled log sink shared by all services.
//
// Log files are written under a configurable directory as
// autogrid_<timestamp>.log; files beyond the configured retention count
// are pruned at startup.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type Config struct {
	Level Level

	// Dir is the log directory. Empty disables file output and logs to
	// stderr only.
	Dir string

	// KeepLogs is how many old log files to retain. <=0 keeps everything.
	KeepLogs int

	// EchoStderr duplicates file output to stderr.
	EchoStderr bool
}

type Logger struct {
	level Level
	out   *log.Logger
	file  *os.File
}

func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	var file *os.File

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		pruneOld(cfg.Dir, cfg.KeepLogs)

		name := fmt.Sprintf("autogrid_%s.log", time.Now().Format("20060102_150405"))
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
		if cfg.EchoStderr {
			writers = append(writers, os.Stderr)
		}
	} else {
		writers = append(writers, os.Stderr)
	}

	return &Logger{
		level: cfg.Level,
		out:   log.New(io.MultiWriter(writers...), "", log.LstdFlags|log.LUTC),
		file:  file,
	}, nil
}

func (l *Logger) Close() {
	if l == nil || l.file == nil {
		return
	}
	_ = l.file.Close()
}

func (l *Logger) Debugf(format string, args ...any) { l.printf(LevelDebug, "DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.printf(LevelInfo, "INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.printf(LevelWarn, "WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.printf(LevelError, "ERROR", format, args...) }

func (l *Logger) printf(lv Level, tag string, format string, args ...any) {
	if l == nil || lv < l.level {
		return
	}
	l.out.Printf(tag+" "+format, args...)
}

// pruneOld removes autogrid_*.log files beyond keep, newest first.
func pruneOld(dir string, keep int) {
	if keep <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type logFile struct {
		path string
		mod  time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "autogrid_") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, name), mod: info.ModTime()})
	}
	if len(files) <= keep {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	for _, f := range files[keep:] {
		_ = os.Remove(f.path)
	}
}
