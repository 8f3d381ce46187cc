package serve

import (
	"context"
	"net/http"

	"github.com/advdv/bmicro"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler sets a custom health check handler.
// If not set, a default handler returning 200 OK is used.
func WithHealthHandler(h func(http.ResponseWriter, *http.Request)) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// NewDispatcher creates the dispatcher that serves the handler, configured from the environment and
// logging through 'logger'.
func NewDispatcher(env Environment, logger *zap.Logger) (*bmicro.Dispatcher, error) {
	logs, err := NewZapLogger(logger, env.errorStatusCodes())
	if err != nil {
		return nil, err
	}

	return bmicro.NewDispatcher(bmicro.Config{
		Development: env.development(),
		BufferLimit: env.bufferLimit(),
		BodyLimit:   env.bodyLimit(),
		Logger:      logs,
	}), nil
}

// FxOptions returns the fx options that make up the DI graph of [NewApp]. The 'newHandler' constructor
// must return a [bmicro.Handler] and may request anything that is provided, including *Runtime[E].
func FxOptions[E Environment](newHandler any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return append([]fx.Option{
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(NewLogger),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(NewMetrics),
		fx.Provide(NewDispatcher),
		fx.Provide(NewRuntime[E]),
		fx.Provide(newHandler),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer),
		fx.Invoke(startServerHook),
	}, cfg.FxOptions...)
}

// NewApp creates a batteries-included app that serves a single handler through a [bmicro.Dispatcher].
//
// Example:
//
//	serve.NewApp[Env](func(rt *serve.Runtime[Env]) bmicro.Handler {
//	    return bmicro.HandlerFunc(func(w bmicro.ResponseWriter, r *http.Request) (any, error) {
//	        return bmicro.DecodeJSON[map[string]any](r)
//	    })
//	}).Run()
func NewApp[E Environment](newHandler any, opts ...Option) *App {
	return &App{
		app: fx.New(FxOptions[E](newHandler, opts...)...),
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application with the given context.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
