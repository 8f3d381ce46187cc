package serve_test

import (
	"net/http"
	"testing"

	"github.com/advdv/bmicro"
	"github.com/advdv/bmicro/serve"
	"github.com/advdv/bmicro/serve/servetest"
	"go.uber.org/zap"
)

// TestEnv is a test environment with app-specific fields beyond BaseEnvironment.
type TestEnv struct {
	serve.BaseEnvironment
	Greeting string `env:"GREETING,required"`
}

// setTestEnv sets the base env and the TestEnv-specific env vars.
func setTestEnv(t *testing.T, port int) *servetest.Env {
	t.Helper()
	env := servetest.SetBaseEnv(t, port)
	t.Setenv("GREETING", "hello")
	return env
}

// NewTestHandler demonstrates a handler constructor that receives the runtime via fx.
func NewTestHandler(rt *serve.Runtime[TestEnv]) bmicro.Handler {
	return bmicro.HandlerFunc(func(w bmicro.ResponseWriter, r *http.Request) (any, error) {
		ctx := r.Context()

		switch r.URL.Path {
		case "/greet":
			serve.Span(ctx).AddEvent("greeting")
			serve.Log(ctx).Info("greeting", zap.String("service", rt.Env().ServiceName))

			return map[string]any{
				"greeting":    rt.Env().Greeting,
				"service":     rt.Env().ServiceName,
				"development": rt.Development(),
			}, nil
		case "/echo":
			body, err := bmicro.DecodeJSON[map[string]any](r)
			if err != nil {
				return nil, err
			}

			w.WriteHeader(http.StatusCreated)
			return body, nil
		case "/text":
			return bmicro.Text(r)
		case "/empty":
			return bmicro.NoContent, nil
		case "/forbidden":
			return nil, bmicro.CreateError(bmicro.CodeForbidden, "not yours", nil)
		case "/panic":
			panic("boom")
		default:
			return nil, bmicro.NewError(bmicro.CodeNotFound, nil)
		}
	})
}
