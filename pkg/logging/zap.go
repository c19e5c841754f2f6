package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConsoleConfig controls the console logger backend.
type ZapConsoleConfig struct {
	Level string // "debug", "info", "warn", "error"

	// Disable colored level names, e.g. when output is not a terminal
	NoColor bool
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapConsoleLogger creates a Logger backed by a zap console encoder.
// Level names are colored unless disabled, the rest of the line is plain
// text suitable for an operator watching a deployment.
func NewZapConsoleLogger(config ZapConsoleConfig) (Logger, error) {
	level := zapcore.InfoLevel
	if config.Level != "" {
		if err := level.Set(config.Level); err != nil {
			return nil, err
		}
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	if config.NoColor {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		level,
	)

	// Skip the adapter frame so callers are reported correctly
	logger := zap.New(core, zap.AddCallerSkip(1))

	return &zapLogger{sugar: logger.Sugar()}, nil
}

func (z *zapLogger) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case LogLevelDebug:
		z.sugar.Debugf(format, args...)
	case LogLevelInfo:
		z.sugar.Infof(format, args...)
	case LogLevelWarn:
		z.sugar.Warnf(format, args...)
	case LogLevelError:
		z.sugar.Errorf(format, args...)
	default:
		z.sugar.Infof(format, args...)
	}
}

func (z *zapLogger) Debugf(msg string, args ...interface{}) {
	z.sugar.Debugf(msg, args...)
}

func (z *zapLogger) Infof(msg string, args ...interface{}) {
	z.sugar.Infof(msg, args...)
}

func (z *zapLogger) Warnf(msg string, args ...interface{}) {
	z.sugar.Warnf(msg, args...)
}

func (z *zapLogger) Errorf(msg string, args ...interface{}) {
	z.sugar.Errorf(msg, args...)
}
