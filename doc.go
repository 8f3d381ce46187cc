// Package bmicro turns handlers that return values into standard library http.Handlers.
//
// # Overview
//
// A bmicro handler does not have to write its response. It returns the value that should become the
// response, or an error, and the [Dispatcher] takes care of the rest:
//
//	h := bmicro.HandlerFunc(func(w bmicro.ResponseWriter, r *http.Request) (any, error) {
//	    in, err := bmicro.DecodeJSON[CreateItem](r)
//	    if err != nil {
//	        return nil, err // 400 or 413, the decoders pick the status
//	    }
//
//	    item, err := db.Create(r.Context(), in)
//	    if err != nil {
//	        return nil, bmicro.NewError(bmicro.CodeConflict, err)
//	    }
//
//	    w.WriteHeader(http.StatusCreated)
//	    return item, nil
//	})
//
//	http.ListenAndServe(":8080", bmicro.Serve(h))
//
// # Returned Values
//
// The value a handler returns decides the response:
//
//   - [NoContent]: 204 with an empty body, whatever status was set before
//   - nil: nothing is added, the handler wrote the response itself
//   - []byte: sent as is, Content-Type defaults to application/octet-stream
//   - io.Reader: piped to the client without buffering and closed afterwards
//   - string: sent as is
//   - anything else: encoded as JSON, indented in development mode
//
// The status is the one the handler set with WriteHeader, or 200. Headers the handler set are never
// overwritten, but body bytes it wrote itself are replaced by the returned value. [Send] applies the
// same rules outside of a dispatcher.
//
// # Buffered Response Writer
//
// Handlers write to a [ResponseWriter] that holds the response in memory until the handler is done.
// When the handler fails everything it wrote is discarded and replaced by an error response.
// Streaming, either by returning an io.Reader or by flushing with http.ResponseController, ends the
// buffering and from then on failures can only be logged.
//
// # Error Handling
//
// Returned errors and panics are mapped onto an error response:
//
//   - [*Error] (created with [NewError] or [CreateError]): its code and message
//   - errors and panic values with a StatusCode() int or Status() int method: that status, and
//     the result of a Message() string method if there is one
//   - anything else: 500 with the generic status text
//
// A carried status that cannot be written on the wire (outside 100-999) counts as no status.
//
// All standard HTTP 4xx and 5xx status codes are available as [Code] constants. In development mode
// the response carries the error and its stack trace instead. Every failure is reported to the
// [Logger] and panics with a value that is not an error additionally trigger a warning. A panic with
// http.ErrAbortHandler is passed on.
//
// # Request Bodies
//
// [Buffer], [Text], [JSON], [DecodeJSON] and [Query] read the request body on the first call and
// cache it, any later call for the same request decodes the cached bytes. Bodies are limited to
// [DefaultBodyLimit] unless the dispatcher or the call sets another limit with [WithLimit]. The cache
// entry is dropped when the dispatcher is done with the request or when the client goes away.
//
// Decoders only work on requests served by a dispatcher. To use them elsewhere register the request
// with [BodyCache.Track] first.
package bmicro
