package serve

import (
	"time"

	intervals "github.com/MawKKe/integer-interval-expressions-go"
	"github.com/advdv/bmicro"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// DevelopmentMode is the value of BMICRO_ENV that enables development mode.
const DevelopmentMode = "development"

// DefaultRequiredErrorStatusCodes must always be part of BMICRO_ERROR_STATUS_CODES. Unclassified
// failures are sent as 500 and must never be logged below the error level.
var DefaultRequiredErrorStatusCodes = []int{500}

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	port() int
	serviceName() string
	healthPath() string
	metricsPath() string
	development() bool
	logLevel() zapcore.Level
	otelExporter() string
	bodyLimit() string
	bufferLimit() int
	timeout() time.Duration
	errorStatusCodes() string
}

// BaseEnvironment contains the environment variables every service reads.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Port         int           `env:"BMICRO_PORT,required"`
	ServiceName  string        `env:"BMICRO_SERVICE_NAME,required"`
	HealthPath   string        `env:"BMICRO_HEALTH_PATH" envDefault:"/healthz"`
	MetricsPath  string        `env:"BMICRO_METRICS_PATH" envDefault:"/metrics"`
	Mode         string        `env:"BMICRO_ENV" envDefault:"production"`
	LogLevel     zapcore.Level `env:"BMICRO_LOG_LEVEL" envDefault:"info"`
	OtelExporter string        `env:"BMICRO_OTEL_EXPORTER" envDefault:"stdout"`
	// BodyLimit is the default size limit of request bodies read by the decoders, e.g. "1mb".
	BodyLimit string `env:"BMICRO_BODY_LIMIT" envDefault:"1mb"`
	// BufferLimit caps the number of response bytes held in memory, -1 disables the cap.
	BufferLimit int           `env:"BMICRO_BUFFER_LIMIT" envDefault:"-1"`
	Timeout     time.Duration `env:"BMICRO_TIMEOUT" envDefault:"30s"`
	// ErrorStatusCodes is an interval expression such as "500-599" or "500,502-504". Failures with a
	// status in this set are logged as errors, others as informational.
	ErrorStatusCodes string `env:"BMICRO_ERROR_STATUS_CODES" envDefault:"500-599"`
}

func (e BaseEnvironment) port() int                { return e.Port }
func (e BaseEnvironment) serviceName() string      { return e.ServiceName }
func (e BaseEnvironment) healthPath() string       { return e.HealthPath }
func (e BaseEnvironment) metricsPath() string      { return e.MetricsPath }
func (e BaseEnvironment) development() bool        { return e.Mode == DevelopmentMode }
func (e BaseEnvironment) logLevel() zapcore.Level  { return e.LogLevel }
func (e BaseEnvironment) otelExporter() string     { return e.OtelExporter }
func (e BaseEnvironment) bodyLimit() string        { return e.BodyLimit }
func (e BaseEnvironment) bufferLimit() int         { return e.BufferLimit }
func (e BaseEnvironment) timeout() time.Duration   { return e.Timeout }
func (e BaseEnvironment) errorStatusCodes() string { return e.ErrorStatusCodes }

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		if _, err := bmicro.ParseLimit(e.bodyLimit()); err != nil {
			return e, errors.Wrapf(err, "invalid BMICRO_BODY_LIMIT %q", e.bodyLimit())
		}

		if err := ValidateErrorStatusCodes(e.errorStatusCodes(), DefaultRequiredErrorStatusCodes...); err != nil {
			return e, errors.Wrap(err, "invalid BMICRO_ERROR_STATUS_CODES")
		}

		return e, nil
	}
}

// ValidateErrorStatusCodes checks that the interval expression 'expr' parses and contains every
// status code in 'required'.
func ValidateErrorStatusCodes(expr string, required ...int) error {
	parsed, err := intervals.ParseExpression(expr)
	if err != nil {
		return errors.Wrapf(err, "failed to parse %q", expr)
	}

	var missing []int
	for _, code := range required {
		if !parsed.Matches(code) {
			missing = append(missing, code)
		}
	}

	if len(missing) > 0 {
		return errors.Newf("%q does not cover all required status codes, missing: %v (recommended value: %q)",
			expr, missing, "500-599")
	}

	return nil
}
