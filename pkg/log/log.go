package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Option func(cfg *zap.Config)

// WithFormat selects the console or json encoder. Unknown formats fall back to console.
func WithFormat(format string) Option {
	return func(cfg *zap.Config) {
		if format == FormatJSON {
			cfg.Encoding = FormatJSON
		}
	}
}

// WithOutput replaces stdout as the destination of log entries.
func WithOutput(paths ...string) Option {
	return func(cfg *zap.Config) {
		cfg.OutputPaths = paths
	}
}

// InitLog builds the broker logger. Component names land under "component" so the
// generation, worker and store entries can be told apart.
func InitLog(lvl zap.AtomicLevel, opts ...Option) *zap.Logger {
	cfg := zap.Config{
		Level:    lvl,
		Encoding: FormatConsole,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "component",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeName:     zapcore.FullNameEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    map[string]any{"service": "data-broker"},
	}
	for _, o := range opts {
		o(&cfg)
	}

	logger, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		panic(err)
	}
	return logger
}
