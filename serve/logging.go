package serve

import (
	intervals "github.com/MawKKe/integer-interval-expressions-go"
	"github.com/advdv/bmicro"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding, BMICRO_LOG_LEVEL controls the level (debug, info, warn, error).
// In development mode stack traces are added from the warn level on.
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.logLevel())
	cfg.Development = env.development()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(zap.AddStacktrace(lo.Ternary(env.development(), zapcore.WarnLevel, zapcore.ErrorLevel)))
}

type zapLogger struct {
	*zap.Logger
	errorCodes intervals.Expression
}

// levelFor picks the log level of a failure with 'status'. Zero means the status is unknown.
func (l zapLogger) levelFor(status int) zapcore.Level {
	if status == 0 || l.errorCodes.Matches(status) {
		return zapcore.ErrorLevel
	}

	return zapcore.InfoLevel
}

func (l zapLogger) LogHandlerError(status int, err error) {
	l.Logger.Log(l.levelFor(status), "handler error", zap.Int("status", status), zap.Error(err))
}

func (l zapLogger) LogThrownValue(status int, v any) {
	l.Logger.Warn("thrown value must be an error", zap.Int("status", status), zap.Any("value", v))
}

func (l zapLogger) LogImplicitFlushError(err error) {
	l.Logger.Error("error while flushing implicitly", zap.Error(err))
}

// NewZapLogger adapts 'l' to the [bmicro.Logger] interface. Handler errors with a status that matches the
// interval expression 'errorStatusCodes' are logged at the error level, others at the info level.
func NewZapLogger(l *zap.Logger, errorStatusCodes string) (bmicro.Logger, error) {
	expr, err := intervals.ParseExpression(errorStatusCodes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse error status codes %q", errorStatusCodes)
	}

	return zapLogger{Logger: l.Named("bmicro").Named("serve"), errorCodes: expr}, nil
}
