package serve

import (
	"github.com/advdv/bmicro"
)

// Runtime provides access to app-scoped dependencies.
// Inject this into the handler constructor via fx instead of pulling from context.
//
// Example:
//
//	func NewHandler(rt *serve.Runtime[Env]) bmicro.Handler {
//	    return bmicro.HandlerFunc(func(w bmicro.ResponseWriter, r *http.Request) (any, error) {
//	        return map[string]string{"greeting": rt.Env().Greeting}, nil
//	    })
//	}
type Runtime[E Environment] struct {
	env        E
	dispatcher *bmicro.Dispatcher
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, dispatcher *bmicro.Dispatcher) *Runtime[E] {
	return &Runtime[E]{env: env, dispatcher: dispatcher}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Development reports whether the service runs in development mode.
func (r *Runtime[E]) Development() bool {
	return r.env.development()
}

// Dispatcher returns the dispatcher that serves the handler. It can be used to serve additional
// handlers with the same configuration.
func (r *Runtime[E]) Dispatcher() *bmicro.Dispatcher {
	return r.dispatcher
}
