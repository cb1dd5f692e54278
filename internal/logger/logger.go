// Package logger holds the process-wide structured logger used by the
// allocator engines and the CLI.
package logger

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvLogAlloc turns on debug logging to stderr before Init is called.
const EnvLogAlloc = "HEAPKIT_LOG_ALLOC"

// L is the global logger. It discards everything unless EnvLogAlloc is set
// or Init has been called.
var L = defaultLogger()

func defaultLogger() *zap.Logger {
	if os.Getenv(EnvLogAlloc) == "" {
		return zap.NewNop()
	}
	l, err := New(Options{Level: "debug", Format: "console"})
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Options configures a logger.
type Options struct {
	Level      string // debug, info, warn, error. Default: info
	Format     string // console or json. Default: console
	Filename   string // Empty writes to stderr; otherwise a rotated file
	MaxSize    int    // Megabytes before rotation
	MaxDays    int    // Days to keep rotated files
	MaxBackups int    // Rotated files to keep
}

// New builds a logger from opts without touching L.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, errors.Wrapf(err, "logger: level %q", opts.Level)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, errors.Newf("logger: unknown format %q", opts.Format)
	}

	var sink zapcore.WriteSyncer
	if opts.Filename == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    opts.MaxSize,
			MaxAge:     opts.MaxDays,
			MaxBackups: opts.MaxBackups,
		})
	}

	core := zapcore.NewCore(enc, sink, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddStacktrace(zapcore.FatalLevel)), nil
}

// Init replaces L with a logger built from opts.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	L = l
	return nil
}

// Named returns a child of L for one component.
func Named(name string) *zap.Logger {
	return L.Named(name)
}

// Sync flushes L. Errors from syncing a terminal are ignored.
func Sync() {
	_ = L.Sync()
}
