package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"erpinsight/pkg/errors"
)

var globalLogger *Logger

type ctxKey struct{}

// Logger wraps zap.SugaredLogger. Error level calls are also sent to the
// error tracker when one is set.
type Logger struct {
	*zap.SugaredLogger
	errorTracker errors.Tracker
}

// Init builds the global logger. production switches to JSON with sampling,
// anything else gets a colored console.
func Init(level string, env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Sampling = nil
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	fields := map[string]interface{}{"service": "erpinsight", "env": env}
	if host, err := os.Hostname(); err == nil {
		fields["host"] = host
	}
	config.InitialFields = fields

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	var tracker errors.Tracker
	if globalLogger != nil {
		tracker = globalLogger.errorTracker
	}
	globalLogger = &Logger{SugaredLogger: logger.Sugar(), errorTracker: tracker}
	return nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// SetErrorTracker enables error reporting on the global logger and its
// future children
func SetErrorTracker(tracker errors.Tracker) {
	Get().errorTracker = tracker
}

// Get returns the global logger, building a development one on first use
func Get() *Logger {
	if globalLogger == nil {
		logger, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: logger.Sugar()}
	}
	return globalLogger
}

func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		errorTracker:  l.errorTracker,
	}
}

// IntoContext stores a request-scoped logger in ctx
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped logger, or the global one
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	return Get()
}

func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)
	l.capture(context.Background(), errors.Wrapf(errors.ErrInternal, "%v", fmt.Sprint(args...)), nil)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)
	l.capture(context.Background(), fmt.Errorf(template, args...), nil)
}

// ErrorWithContext logs err and reports it with tags. ctx carries the user and
// realm picked up by the tracker.
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	l.SugaredLogger.Errorw(err.Error(), "tags", tags)
	l.capture(ctx, err, tags)
}

func (l *Logger) capture(ctx context.Context, err error, tags map[string]string) {
	if l.errorTracker == nil {
		return
	}
	if tags == nil {
		tags = map[string]string{"component": "logger"}
	}
	_ = l.errorTracker.CaptureError(ctx, err, tags)
}

// Sync flushes buffered entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
