package serve

import (
	"context"
	"fmt"
	"net/http"

	"github.com/advdv/bmicro"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServerConfig holds optional configuration for the HTTP server.
type ServerConfig struct {
	HealthHandler func(http.ResponseWriter, *http.Request)
}

// ServerParams holds the dependencies for creating an HTTP server.
type ServerParams struct {
	fx.In

	Env        Environment
	Handler    bmicro.Handler
	Dispatcher *bmicro.Dispatcher
	Logger     *zap.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
	Metrics    *Metrics
}

// NewServer creates an HTTP server that serves the handler on every path except the health and
// metrics endpoints.
func NewServer(params ServerParams, cfg ServerConfig) *http.Server {
	d := &requestDep{
		logger: params.Logger,
	}

	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}

	healthPath, metricsPath := params.Env.healthPath(), params.Env.metricsPath()

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, healthHandler)
	mux.Handle(metricsPath, params.Metrics.Handler())
	mux.Handle("/", params.Metrics.Middleware(
		withRequestDep(d)(params.Dispatcher.Handler(recordOutcome(params.Handler)))))

	// probes and scrapes are not traced, they would only produce noise.
	handler := withTracing(params.TracerProv, params.Propagator, params.Env.serviceName(),
		healthPath, metricsPath)(mux)

	tc := TimeoutConfig{Timeout: params.Env.timeout()}
	readHeaderTimeout, readTimeout, writeTimeout, idleTimeout := tc.ServerTimeouts()

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", params.Env.port()),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// startServerHook registers lifecycle hooks for the HTTP server.
func startServerHook(lc fx.Lifecycle, server *http.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting server", zap.String("addr", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
