// Package serve provides a batteries-included way of running a [bmicro.Handler] as an HTTP service.
//
// # Overview
//
// serve handles the boilerplate around the dispatcher: environment parsing, structured logging,
// OpenTelemetry tracing, Prometheus metrics, health checks and graceful shutdown. A complete
// service is created in a single call:
//
//	serve.NewApp[Env](NewHandler,
//	    serve.WithFx(fx.Provide(NewRepository)),
//	).Run()
//
// The handler constructor is resolved through fx. It must return a [bmicro.Handler] and may
// request [*Runtime] and anything else that is provided.
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    serve.BaseEnvironment
//	    Greeting string `env:"GREETING,required"`
//	}
//
// BaseEnvironment provides the following environment variables:
//
//	| Variable                  | Required | Default    | Description                                   |
//	|---------------------------|----------|------------|-----------------------------------------------|
//	| BMICRO_PORT               | Yes      | -          | Port the HTTP server listens on               |
//	| BMICRO_SERVICE_NAME       | Yes      | -          | Service name for logging, tracing and metrics |
//	| BMICRO_HEALTH_PATH        | No       | /healthz   | Health check endpoint                         |
//	| BMICRO_METRICS_PATH       | No       | /metrics   | Prometheus scrape endpoint                    |
//	| BMICRO_ENV                | No       | production | "development" pretty prints and sends traces  |
//	| BMICRO_LOG_LEVEL          | No       | info       | Log level (debug, info, warn, error)          |
//	| BMICRO_OTEL_EXPORTER      | No       | stdout     | Trace exporter: stdout, xrayudp or none       |
//	| BMICRO_BODY_LIMIT         | No       | 1mb        | Default request body limit of the decoders    |
//	| BMICRO_BUFFER_LIMIT       | No       | -1         | Response buffer limit in bytes, -1 is none    |
//	| BMICRO_TIMEOUT            | No       | 30s        | Outer bound for reading and writing requests  |
//	| BMICRO_ERROR_STATUS_CODES | No       | 500-599    | Statuses of failures that are logged as error |
//
// # Development Mode
//
// With BMICRO_ENV=development values are sent as indented JSON, and failures are answered with the
// error and the stack trace instead of a generic message. Never enable it for a service that is
// reachable by untrusted clients.
//
// # Context
//
// Handlers read request-scoped values from the request context:
//
//	func (h *Handler) ServeValue(w bmicro.ResponseWriter, r *http.Request) (any, error) {
//	    serve.Log(r.Context()).Info("serving")
//	    serve.Span(r.Context()).AddEvent("serving")
//	    // ...
//	}
//
// [Log] returns a zap logger that carries the trace and span id. [Span] returns the active span.
//
// # Error Status Codes
//
// BMICRO_ERROR_STATUS_CODES is an interval expression such as "500-599" or "500,502-504". Failures
// whose status matches it are logged at the error level, other failures at the info level, so an
// expected 404 does not page anyone. It must always include 500.
//
// # Testing
//
// The companion servetest package serves handlers without the DI graph, or builds the full graph
// with fxtest:
//
//	rec := servetest.CallHandler(h, httptest.NewRequest(http.MethodGet, "/", nil))
//
//	servetest.SetBaseEnv(t, 18081)
//	app := servetest.New[Env](t, NewHandler)
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
//
// Use [WithLogger] to unit-test handlers that call [Log].
package serve
