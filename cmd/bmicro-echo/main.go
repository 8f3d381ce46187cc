// Command bmicro-echo serves a handler that echoes request bodies back, decoded the way the client
// declared them.
package main

import (
	"errors"
	"io/fs"
	"log"
	"mime"
	"net/http"

	"github.com/advdv/bmicro"
	"github.com/advdv/bmicro/serve"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Env is the environment of the echo service.
type Env struct {
	serve.BaseEnvironment
	// MaxEcho is the body limit of echoed requests, it may be lower than BMICRO_BODY_LIMIT.
	MaxEcho string `env:"ECHO_MAX_BODY" envDefault:"64kb"`
}

type echo struct {
	rt *serve.Runtime[Env]
}

func newEcho(rt *serve.Runtime[Env]) bmicro.Handler {
	return &echo{rt: rt}
}

func (h *echo) ServeValue(w bmicro.ResponseWriter, r *http.Request) (any, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return map[string]any{"service": h.rt.Env().ServiceName, "method": r.Method, "path": r.URL.Path}, nil
	}

	limit := bmicro.WithLimit(h.rt.Env().MaxEcho)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	serve.Log(r.Context()).Debug("echoing", zap.String("media_type", mediaType))

	switch mediaType {
	case "application/json":
		v, err := bmicro.DecodeJSON[any](r, limit)
		if err != nil {
			return nil, err
		}

		return map[string]any{"echo": v}, nil
	case "text/plain", "":
		text, err := bmicro.Text(r, limit)
		if err != nil {
			return nil, err
		}

		if text == "" {
			return bmicro.NoContent, nil
		}

		return text, nil
	default:
		raw, err := bmicro.Buffer(r, limit)
		if err != nil {
			return nil, err
		}

		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		return raw, nil
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	serve.NewApp[Env](newEcho).Run()
}
