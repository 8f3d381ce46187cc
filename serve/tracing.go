package serve

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/advdv/bmicro"
	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"go.opentelemetry.io/contrib/detectors/aws/lambda"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
)

// Values of BMICRO_OTEL_EXPORTER.
const (
	ExporterStdout  = "stdout"
	ExporterXrayUDP = "xrayudp"
	ExporterNone    = "none"
)

// Span attributes describing what the dispatched handler ended with.
const (
	attrValueType   = attribute.Key("bmicro.value.type")
	attrErrorStatus = attribute.Key("bmicro.error.status")
	attrPanicked    = attribute.Key("bmicro.panicked")
)

const tracingInitTimeout = 5 * time.Second

// NewTracerProvider builds the TracerProvider selected by BMICRO_OTEL_EXPORTER. The SDK provider is shut
// down when the app stops.
func NewTracerProvider(lc fx.Lifecycle, env Environment) (trace.TracerProvider, error) {
	kind := env.otelExporter()
	if kind == ExporterNone {
		return noop.NewTracerProvider(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), tracingInitTimeout)
	defer cancel()

	exp, err := newExporter(ctx, kind)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, kind, env.serviceName())
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exp)),
		sdktrace.WithResource(res),
	}
	if kind == ExporterXrayUDP {
		opts = append(opts, sdktrace.WithIDGenerator(xray.NewIDGenerator()))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	lc.Append(fx.StopHook(tp.Shutdown))

	return tp, nil
}

// NewPropagator picks the propagation format that matches the exporter: X-Ray trace headers when
// exporting to X-Ray, W3C trace context and baggage otherwise.
func NewPropagator(env Environment) propagation.TextMapPropagator {
	if env.otelExporter() == ExporterXrayUDP {
		return xray.Propagator{}
	}

	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

func newExporter(ctx context.Context, kind string) (sdktrace.SpanExporter, error) {
	switch kind {
	case ExporterStdout, "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterXrayUDP:
		return xrayudp.NewSpanExporter(ctx)
	default:
		return nil, fmt.Errorf("unsupported BMICRO_OTEL_EXPORTER: %q (supported: %s, %s, %s)",
			kind, ExporterStdout, ExporterXrayUDP, ExporterNone)
	}
}

func newResource(ctx context.Context, kind, serviceName string) (*resource.Resource, error) {
	if kind == ExporterXrayUDP {
		return lambda.NewResourceDetector().Detect(ctx)
	}

	return resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)), nil
}

// withTracing starts a server span for every request except those to 'untraced' paths.
func withTracing(
	tp trace.TracerProvider, prop propagation.TextMapPropagator, serviceName string, untraced ...string,
) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(untraced))
	for _, p := range untraced {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithPropagators(prop),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool { return !skip[r.URL.Path] }),
		)
	}
}

// recordOutcome annotates the request span with what 'h' ended with. Returned values are recorded by
// type, errors by the status they will be sent with. Errors that become a server error and panics mark
// the span as failed.
func recordOutcome(h bmicro.Handler) bmicro.Handler {
	return bmicro.HandlerFunc(func(w bmicro.ResponseWriter, r *http.Request) (any, error) {
		span := trace.SpanFromContext(r.Context())

		defer func() {
			if e := recover(); e != nil {
				span.SetAttributes(attrPanicked.Bool(true))
				span.SetStatus(codes.Error, fmt.Sprint(e))
				panic(e)
			}
		}()

		v, err := h.ServeValue(w, r)
		if err == nil {
			span.SetAttributes(attrValueType.String(fmt.Sprintf("%T", v)))
			return v, nil
		}

		status, ok := bmicro.StatusOf(err)
		if !ok {
			status = http.StatusInternalServerError
		}

		span.SetAttributes(attrErrorStatus.Int(status))
		if status >= http.StatusInternalServerError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return v, err
	})
}
