package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Level       string
	Service     string
	Environment string
	// Console switches to the human-readable encoder used by tourctl.
	Console bool
}

// New constructs a zap.Logger configured for structured JSON logging.
func New(opts Options) (*zap.Logger, error) {
	zapLevel := zapcore.InfoLevel
	if opts.Level != "" {
		if err := zapLevel.Set(strings.ToLower(opts.Level)); err != nil {
			return nil, err
		}
	}

	encoding := "json"
	encodeLevel := zapcore.LowercaseLevelEncoder
	if opts.Console {
		encoding = "console"
		encodeLevel = zapcore.CapitalLevelEncoder
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if opts.Console {
		cfg.OutputPaths = []string{"stderr"}
	}

	var initial []zap.Field
	if opts.Service != "" {
		initial = append(initial, zap.String("service", opts.Service))
	}
	if opts.Environment != "" {
		initial = append(initial, zap.String("env", opts.Environment))
	}

	return cfg.Build(zap.Fields(initial...))
}
