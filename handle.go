package bmicro

import (
	"context"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// Handler serves a request by returning the value that should become the response.
type Handler interface {
	ServeValue(w ResponseWriter, r *http.Request) (any, error)
}

// HandlerFunc allow casting a function to implement [Handler].
type HandlerFunc func(ResponseWriter, *http.Request) (any, error)

// ServeValue implements the [Handler] interface.
func (f HandlerFunc) ServeValue(w ResponseWriter, r *http.Request) (any, error) {
	return f(w, r)
}

// Config is read once when the dispatcher is created.
type Config struct {
	// Development enables pretty printed JSON and sends error traces to the client.
	Development bool
	// BufferLimit is the maximum number of response bytes that are buffered, zero or less means no limit.
	BufferLimit int
	// BodyLimit is the default body size limit for the decoders, it defaults to [DefaultBodyLimit].
	BodyLimit string
	// Logger is informed about failures, it defaults to the standard logger.
	Logger Logger
	// Bodies caches request bodies, by default every dispatcher has its own cache.
	Bodies *BodyCache
}

// Dispatcher turns the values returned by handlers into responses.
type Dispatcher struct {
	cfg Config
}

// NewDispatcher inits a dispatcher, unset fields of 'cfg' take their defaults.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = NewStdLogger(nil)
	}

	if cfg.Bodies == nil {
		cfg.Bodies = NewBodyCache()
	}

	if cfg.BodyLimit == "" {
		cfg.BodyLimit = DefaultBodyLimit
	}

	if cfg.BufferLimit <= 0 {
		cfg.BufferLimit = -1
	}

	return &Dispatcher{cfg: cfg}
}

// Serve converts 'h' into a standard library http.Handler using a dispatcher with the default config.
func Serve(h Handler) http.Handler {
	return NewDispatcher(Config{}).Handler(h)
}

// Handler converts 'h' into a standard library http.Handler.
func (d *Dispatcher) Handler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.Run(w, r, h)
	})
}

// Run serves a single request with 'h' and always leaves a complete response behind. The value returned
// by the handler decides the response:
//
//   - [NoContent]: 204 with an empty body
//   - nil: nothing is added, whatever the handler wrote itself is sent as is
//   - anything else: sent with [Send] using the status the handler set, or 200. Body bytes the handler
//     wrote itself are dropped, a value returned after the handler flushed is an error.
//
// Returned errors and panics are mapped onto an error response instead.
func (d *Dispatcher) Run(resp http.ResponseWriter, req *http.Request, h Handler) {
	req, release := d.cfg.Bodies.track(req, d.cfg.BodyLimit)
	defer release()

	// the request context is cancelled when the client goes away before we are done.
	stop := context.AfterFunc(req.Context(), release)
	defer stop()

	bresp := newBufferResponse(resp, d.cfg.BufferLimit)
	defer bresp.Free()

	v, f, failed := d.invoke(bresp, req, h)
	if !failed {
		if err := d.respond(bresp, v); err != nil {
			f, failed = failure{err: err}, true
		}
	}

	if failed {
		d.fail(bresp, f)
	}

	if err := bresp.FlushBuffer(); err != nil {
		d.cfg.Logger.LogImplicitFlushError(err)
	}
}

func (d *Dispatcher) invoke(w *ResponseBuffer, r *http.Request, h Handler) (v any, f failure, failed bool) {
	defer func() {
		if e := recover(); e != nil {
			if e == http.ErrAbortHandler { //nolint:errorlint
				panic(e)
			}

			v, f, failed = nil, failureOf(e, debug.Stack()), true
		}
	}()

	v, err := h.ServeValue(w, r)
	if err != nil {
		return nil, failure{err: err}, true
	}

	return v, failure{}, false
}

func (d *Dispatcher) respond(w *ResponseBuffer, v any) error {
	if v == nil {
		return nil
	}

	if w.Flushed() {
		return errors.Newf("bmicro: cannot send %T, the response was flushed already", v)
	}

	// the value is the whole body, bytes the handler wrote itself are dropped.
	w.discardBody()

	if v == NoContent {
		return send(w, http.StatusNoContent, nil, false)
	}

	code := w.Status()
	if code == 0 {
		code = http.StatusOK
	}

	return send(w, code, v, d.cfg.Development)
}

func (d *Dispatcher) fail(w *ResponseBuffer, f failure) {
	if w.Flushed() {
		// the response is on its way already, all we can do is tell someone.
		f.log(0, d.cfg.Logger)
		return
	}

	w.Reset()
	if err := sendFailure(w, f, d.cfg.Development, d.cfg.Logger); err != nil {
		d.cfg.Logger.LogHandlerError(http.StatusInternalServerError, err)

		// if all fails we don't want the client to end up with a white screen so we render a 500 with
		// the standard text. It bypasses the buffer since the buffer limit may be what failed.
		w.Reset()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusInternalServerError)

		if err := w.FlushBuffer(); err == nil {
			_, _ = io.WriteString(w, http.StatusText(http.StatusInternalServerError))
		}
	}
}
