// Package logging provides the structured, file-backed logger the core
// dispatch loop and client state machine write their standard events to.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the capability surface the core depends on. Keeping it this small
// means the core never depends on zerolog directly, only on this interface.
type Logger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Config controls where and how the default Logger writes.
type Config struct {
	// Dir is the directory log files are written under. Created if missing.
	// Defaults to "./logs".
	Dir string

	// FileName is the log file's base name within Dir. Defaults to
	// "mine.log".
	FileName string

	// MaxSizeMB is the size in megabytes a log file grows to before it is
	// rotated. Defaults to 10.
	MaxSizeMB int

	// MaxBackups is the number of rotated log files to retain. Defaults to 5.
	MaxBackups int

	// MaxAgeDays is the number of days to retain rotated log files.
	// Defaults to 30.
	MaxAgeDays int
}

func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = "./logs"
	}
	if c.FileName == "" {
		c.FileName = "mine.log"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
	return c
}

type fileLogger struct {
	zlog zerolog.Logger
	f    *lumberjack.Logger
}

// New opens (creating if necessary) the configured log directory and returns
// a Logger that writes timestamped, line-oriented JSON events to a
// lumberjack-rotated file within it, the way rescale-labs-Rescale_Interlink's
// file loggers rotate theirs.
func New(cfg Config) (Logger, error) {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir %q: %w", cfg.Dir, err)
	}

	f := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, cfg.FileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	zlog := zerolog.New(f).With().Timestamp().Logger()
	return &fileLogger{zlog: zlog, f: f}, nil
}

// Close flushes and closes the underlying rotating log file.
func (l *fileLogger) Close() error {
	return l.f.Close()
}

func (l *fileLogger) Info(msg string, kv ...any) {
	l.zlog.Info().Fields(kvToMap(kv)).Msg(msg)
}

func (l *fileLogger) Warn(msg string, kv ...any) {
	l.zlog.Warn().Fields(kvToMap(kv)).Msg(msg)
}

func (l *fileLogger) Error(msg string, kv ...any) {
	l.zlog.Error().Fields(kvToMap(kv)).Msg(msg)
}

// kvToMap turns an alternating key/value variadic slice into a map for
// zerolog's Fields. A trailing unpaired key is logged under "extra".
func kvToMap(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		m[key] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		m["extra"] = kv[len(kv)-1]
	}
	return m
}

// Noop returns a Logger that discards everything, useful as a default when no
// Logger is supplied to NewClient/NewQueue.
func Noop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
