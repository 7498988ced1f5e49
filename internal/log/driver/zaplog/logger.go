package zaplog

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// ZapLogger implements the log.Logger interface using zap for JSON output.
type ZapLogger struct {
	zapLogger *zap.Logger
	config    *Config
	fields    []log.Field
}

// Config represents the configuration options for ZapLogger.
type Config struct {
	// Level sets the minimum logging level
	Level log.Level `json:"level"`

	// TimeFormat specifies the time format for timestamps.
	// Default: RFC3339
	TimeFormat string `json:"time_format,omitempty"`

	// EnableCaller adds caller information to log entries
	EnableCaller bool `json:"enable_caller"`

	// EnableStacktrace adds stack trace for error and fatal levels
	EnableStacktrace bool `json:"enable_stacktrace"`

	// Development enables development mode with more human-readable output
	Development bool `json:"development"`
}

// DefaultConfig returns a default configuration for ZapLogger.
func DefaultConfig() *Config {
	return &Config{
		Level:            log.InfoLevel,
		TimeFormat:       time.RFC3339,
		EnableCaller:     false,
		EnableStacktrace: true,
		Development:      false,
	}
}

// New creates a new ZapLogger with the given configuration.
func New(config *Config) (*ZapLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder(config.TimeFormat),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if config.Development {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		convertLogLevel(config.Level),
	)

	var options []zap.Option
	if config.EnableCaller {
		options = append(options, zap.AddCaller())
	}
	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if config.Development {
		options = append(options, zap.Development())
	}

	return &ZapLogger{
		zapLogger: zap.New(core, options...),
		config:    config,
		fields:    make([]log.Field, 0),
	}, nil
}

// Debug logs a debug message with optional structured fields.
func (l *ZapLogger) Debug(msg string, fields ...log.Field) {
	l.log(log.DebugLevel, msg, fields...)
}

// Info logs an informational message with optional structured fields.
func (l *ZapLogger) Info(msg string, fields ...log.Field) {
	l.log(log.InfoLevel, msg, fields...)
}

// Warn logs a warning message with optional structured fields.
func (l *ZapLogger) Warn(msg string, fields ...log.Field) {
	l.log(log.WarnLevel, msg, fields...)
}

// Error logs an error message with optional structured fields.
func (l *ZapLogger) Error(msg string, fields ...log.Field) {
	l.log(log.ErrorLevel, msg, fields...)
}

// Fatal logs a fatal message with optional structured fields and exits the program.
func (l *ZapLogger) Fatal(msg string, fields ...log.Field) {
	l.log(log.FatalLevel, msg, fields...)
	os.Exit(1)
}

// With creates a new logger instance with additional structured fields.
func (l *ZapLogger) With(fields ...log.Field) log.Logger {
	newFields := make([]log.Field, 0, len(l.fields)+len(fields))
	newFields = append(newFields, l.fields...)
	newFields = append(newFields, fields...)

	return &ZapLogger{
		zapLogger: l.zapLogger,
		config:    l.config,
		fields:    newFields,
	}
}

// WithContext creates a new logger instance with context information.
func (l *ZapLogger) WithContext(ctx context.Context) log.Logger {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		return l.With(log.String("request_id", requestID))
	}
	return l
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.zapLogger.Sync()
}

type contextKey string

const requestIDKey contextKey = "request_id"

// log is the internal logging method that handles the actual logging.
func (l *ZapLogger) log(level log.Level, msg string, fields ...log.Field) {
	if level < l.config.Level {
		return
	}

	allFields := make([]log.Field, 0, len(l.fields)+len(fields))
	allFields = append(allFields, l.fields...)
	allFields = append(allFields, fields...)

	zapFields := convertToZapFields(allFields)

	switch level {
	case log.DebugLevel:
		l.zapLogger.Debug(msg, zapFields...)
	case log.InfoLevel:
		l.zapLogger.Info(msg, zapFields...)
	case log.WarnLevel:
		l.zapLogger.Warn(msg, zapFields...)
	case log.ErrorLevel:
		l.zapLogger.Error(msg, zapFields...)
	case log.FatalLevel:
		l.zapLogger.Fatal(msg, zapFields...)
	}
}

// convertLogLevel converts our log.Level to zap's zapcore.Level.
func convertLogLevel(level log.Level) zapcore.Level {
	switch level {
	case log.DebugLevel:
		return zapcore.DebugLevel
	case log.InfoLevel:
		return zapcore.InfoLevel
	case log.WarnLevel:
		return zapcore.WarnLevel
	case log.ErrorLevel:
		return zapcore.ErrorLevel
	case log.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// convertToZapFields converts a log.Field slice to a zap.Field slice.
func convertToZapFields(fields []log.Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = convertToZapField(field)
	}
	return zapFields
}

// convertToZapField converts a single log.Field to a zap.Field.
func convertToZapField(field log.Field) zap.Field {
	switch v := field.Value.(type) {
	case string:
		return zap.String(field.Key, v)
	case int:
		return zap.Int(field.Key, v)
	case int64:
		return zap.Int64(field.Key, v)
	case float64:
		return zap.Float64(field.Key, v)
	case bool:
		return zap.Bool(field.Key, v)
	case time.Time:
		return zap.Time(field.Key, v)
	case time.Duration:
		return zap.Duration(field.Key, v)
	case error:
		return zap.Error(v)
	default:
		return zap.Any(field.Key, v)
	}
}

// timeEncoder returns a zapcore time encoder for the given layout.
func timeEncoder(layout string) zapcore.TimeEncoder {
	if layout == "" || layout == time.RFC3339 {
		return zapcore.RFC3339TimeEncoder
	}
	return zapcore.TimeEncoderOfLayout(layout)
}
