package servetest

import (
	"net/http"
	"net/http/httptest"

	"github.com/advdv/bmicro"
)

// CallHandler serves 'req' with 'handler' through a dispatcher with the default configuration and
// returns the recorded response. Failures are mapped onto the response the way a running app would.
func CallHandler(handler bmicro.Handler, req *http.Request) *httptest.ResponseRecorder {
	return CallHandlerWith(bmicro.NewDispatcher(bmicro.Config{}), handler, req)
}

// CallHandlerWith is like [CallHandler] but serves through 'd'.
func CallHandlerWith(d *bmicro.Dispatcher, handler bmicro.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	d.Run(rec, req, handler)

	return rec
}
