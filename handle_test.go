package bmicro_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/advdv/bmicro"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWith(t *testing.T, cfg bmicro.Config, h bmicro.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	bmicro.NewDispatcher(cfg).Handler(h).ServeHTTP(rec, req)

	return rec
}

func TestDispatchValues(t *testing.T) {
	for _, tt := range []struct {
		name     string
		handler  bmicro.HandlerFunc
		wantCode int
		wantBody string
		wantType string
		wantLen  string
	}{
		{
			name: "json value",
			handler: func(bmicro.ResponseWriter, *http.Request) (any, error) {
				return map[string]int{"a": 1}, nil
			},
			wantCode: http.StatusOK,
			wantBody: `{"a":1}`,
			wantType: "application/json; charset=utf-8",
		},
		{
			name: "status set by handler is kept",
			handler: func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				w.WriteHeader(http.StatusCreated)
				return []int{1, 2}, nil
			},
			wantCode: http.StatusCreated,
			wantBody: `[1,2]`,
			wantType: "application/json; charset=utf-8",
		},
		{
			name: "no content overrides the status",
			handler: func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				w.WriteHeader(http.StatusCreated)
				return bmicro.NoContent, nil
			},
			wantCode: http.StatusNoContent,
		},
		{
			name: "nil leaves the response to the handler",
			handler: func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				w.Header().Set("Content-Type", "text/csv")
				w.WriteHeader(http.StatusAccepted)
				_, _ = io.WriteString(w, "a,b")
				return nil, nil
			},
			wantCode: http.StatusAccepted,
			wantBody: "a,b",
			wantType: "text/csv",
		},
		{
			name: "returned value replaces bytes the handler wrote",
			handler: func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				_, _ = io.WriteString(w, "abc")
				return "hello", nil
			},
			wantCode: http.StatusOK,
			wantBody: "hello",
			wantLen:  "5",
		},
		{
			name: "status set before writing survives a returned value",
			handler: func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				w.WriteHeader(http.StatusAccepted)
				_, _ = io.WriteString(w, "partial")
				return map[string]bool{"ok": true}, nil
			},
			wantCode: http.StatusAccepted,
			wantBody: `{"ok":true}`,
			wantType: "application/json; charset=utf-8",
			wantLen:  "11",
		},
		{
			name: "no content after a partial write",
			handler: func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				w.Header().Set("Content-Length", "3")
				_, _ = io.WriteString(w, "abc")
				return bmicro.NoContent, nil
			},
			wantCode: http.StatusNoContent,
		},
		{
			name: "nil without writes is an empty 200",
			handler: func(bmicro.ResponseWriter, *http.Request) (any, error) {
				return nil, nil
			},
			wantCode: http.StatusOK,
		},
		{
			name: "string is sent raw",
			handler: func(bmicro.ResponseWriter, *http.Request) (any, error) {
				return "<p>hi</p>", nil
			},
			wantCode: http.StatusOK,
			wantBody: "<p>hi</p>",
			wantType: "text/html; charset=utf-8",
		},
		{
			name: "bytes are binary",
			handler: func(bmicro.ResponseWriter, *http.Request) (any, error) {
				return []byte{0x01, 0x02}, nil
			},
			wantCode: http.StatusOK,
			wantBody: "\x01\x02",
			wantType: "application/octet-stream",
		},
		{
			name: "stream is piped",
			handler: func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				w.Header().Set("Content-Type", "text/plain")
				return io.NopCloser(strings.NewReader("streamed")), nil
			},
			wantCode: http.StatusOK,
			wantBody: "streamed",
			wantType: "text/plain",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			logs := bmicro.NewTestLogger(t)
			rec := serveWith(t, bmicro.Config{Logger: logs}, tt.handler, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			}

			if tt.wantLen != "" {
				assert.Equal(t, tt.wantLen, rec.Header().Get("Content-Length"))
			}

			if tt.wantCode == http.StatusNoContent {
				assert.Empty(t, rec.Header().Get("Content-Length"))
			}

			assert.Equal(t, int64(0), logs.NumLogHandlerError)
		})
	}
}

func TestDispatchFailures(t *testing.T) {
	t.Run("returned error discards the buffered response", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs}, func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
			w.Header().Set("Is-Bar", "rab")
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, "half a response")
			return nil, errors.New("triggered error")
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, rec.Header().Get("Is-Bar"))
		assert.Equal(t, "Internal Server Error", rec.Body.String())
		assert.Equal(t, int64(1), logs.NumLogHandlerError)
	})

	t.Run("error with a status", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs}, func(bmicro.ResponseWriter, *http.Request) (any, error) {
			return nil, errors.Wrap(bmicro.CreateError(bmicro.CodeNotFound, "no such item", nil), "lookup")
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "no such item", rec.Body.String())
		assert.Equal(t, int64(1), logs.NumLogHandlerError)
	})

	t.Run("panic with a non-error value that carries a status", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs}, func(bmicro.ResponseWriter, *http.Request) (any, error) {
			panic(thrown{code: http.StatusForbidden, msg: "Forbidden"})
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Forbidden", rec.Body.String())
		assert.Equal(t, int64(1), logs.NumLogThrownValue)
		assert.Equal(t, int64(0), logs.NumLogHandlerError)
	})

	t.Run("panic with an error", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs}, func(bmicro.ResponseWriter, *http.Request) (any, error) {
			panic(bmicro.NewError(bmicro.CodeBadRequest, errors.New("bad")))
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad", rec.Body.String())
		assert.Equal(t, int64(1), logs.NumLogHandlerError)
	})

	t.Run("error with a status that cannot be written", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		var rec *httptest.ResponseRecorder
		require.NotPanics(t, func() {
			rec = serveWith(t, bmicro.Config{Logger: logs}, func(bmicro.ResponseWriter, *http.Request) (any, error) {
				return nil, statusCodeErr{code: 42}
			}, httptest.NewRequest(http.MethodGet, "/", nil))
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Server Error", rec.Body.String())
		assert.Equal(t, int64(1), logs.NumLogHandlerError)
	})

	t.Run("handler setting a status that cannot be written", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		var rec *httptest.ResponseRecorder
		require.NotPanics(t, func() {
			rec = serveWith(t, bmicro.Config{Logger: logs}, func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
				w.WriteHeader(42)
				return "never sent", nil
			}, httptest.NewRequest(http.MethodGet, "/", nil))
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, int64(1), logs.NumLogThrownValue)
	})

	t.Run("abort handler is re-panicked", func(t *testing.T) {
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			serveWith(t, bmicro.Config{Logger: bmicro.NewTestLogger(t)}, func(bmicro.ResponseWriter, *http.Request) (any, error) {
				panic(http.ErrAbortHandler)
			}, httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})

	t.Run("development sends the trace", func(t *testing.T) {
		rec := serveWith(t, bmicro.Config{Development: true, Logger: bmicro.NewTestLogger(t)},
			func(bmicro.ResponseWriter, *http.Request) (any, error) {
				return nil, errors.New("exploded")
			}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "exploded")
		assert.Contains(t, rec.Body.String(), "handle_test.go")
	})

	t.Run("value that cannot be encoded", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs}, func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
			w.Header().Set("X-Stale", "yes")
			return map[string]any{"ch": make(chan int)}, nil
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Server Error", rec.Body.String())
		assert.Empty(t, rec.Header().Get("X-Stale"))
		assert.Equal(t, int64(1), logs.NumLogHandlerError)
	})

	t.Run("buffer limit exceeded", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs, BufferLimit: 4}, func(bmicro.ResponseWriter, *http.Request) (any, error) {
			return "longer than four bytes", nil
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Server Error", rec.Body.String())
		assert.Equal(t, int64(2), logs.NumLogHandlerError, "the failure and the failed error response")
	})

	t.Run("value after flush is only logged", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs}, func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
			_, _ = io.WriteString(w, "abc")
			require.NoError(t, w.FlushBuffer())

			return "hello", nil
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abc", rec.Body.String())
		assert.Empty(t, rec.Header().Get("Content-Length"))
		assert.Equal(t, int64(1), logs.NumLogHandlerError)
	})

	t.Run("failure after flush is only logged", func(t *testing.T) {
		logs := bmicro.NewTestLogger(t)
		rec := serveWith(t, bmicro.Config{Logger: logs}, func(w bmicro.ResponseWriter, _ *http.Request) (any, error) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, "partial")
			require.NoError(t, http.NewResponseController(w).Flush())

			return nil, errors.New("too late")
		}, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "partial", rec.Body.String())
		assert.Equal(t, int64(1), logs.NumLogHandlerError)
	})
}

type thrown struct {
	code int
	msg  string
}

func (t thrown) StatusCode() int { return t.code }
func (t thrown) Message() string { return t.msg }

func TestDispatchReleasesBodies(t *testing.T) {
	t.Run("after the handler returns", func(t *testing.T) {
		cache := bmicro.NewBodyCache()
		rec := serveWith(t, bmicro.Config{Bodies: cache, Logger: bmicro.NewTestLogger(t)},
			func(_ bmicro.ResponseWriter, r *http.Request) (any, error) {
				assert.Equal(t, 1, cache.Len())
				return bmicro.Text(r)
			}, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")))

		assert.Equal(t, "hello", rec.Body.String())
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("after a panic", func(t *testing.T) {
		cache := bmicro.NewBodyCache()
		serveWith(t, bmicro.Config{Bodies: cache, Logger: bmicro.NewTestLogger(t)},
			func(bmicro.ResponseWriter, *http.Request) (any, error) {
				panic("boom")
			}, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")))

		assert.Equal(t, 0, cache.Len())
	})

	t.Run("when the client goes away", func(t *testing.T) {
		cache := bmicro.NewBodyCache()
		ctx, cancel := context.WithCancel(context.Background())

		released := make(chan struct{})
		go func() {
			defer close(released)
			serveWith(t, bmicro.Config{Bodies: cache, Logger: bmicro.NewTestLogger(t)},
				func(bmicro.ResponseWriter, *http.Request) (any, error) {
					cancel()
					assert.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, time.Millisecond)
					return bmicro.NoContent, nil
				}, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")).WithContext(ctx))
		}()

		<-released
		assert.Equal(t, 0, cache.Len())
	})
}

func TestServe(t *testing.T) {
	rec := httptest.NewRecorder()
	bmicro.Serve(bmicro.HandlerFunc(func(_ bmicro.ResponseWriter, r *http.Request) (any, error) {
		return fmt.Sprintf("%s %s", r.Method, r.URL.Path), nil
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/items/1", nil))

	assert.Equal(t, "DELETE /items/1", rec.Body.String())
}
