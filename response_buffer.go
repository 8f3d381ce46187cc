package bmicro

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrBufferFull is returned when a write would grow the response buffer past its limit.
var ErrBufferFull = errors.New("buffer is full")

// ResponseWriter implements the http.ResponseWriter but the underlying bytes are buffered. This allows
// the dispatcher to reset the writer and formulate a completely new response when the handler fails,
// and to inspect the status code the handler has set so far.
type ResponseWriter interface {
	http.ResponseWriter
	Status() int
	Reset()
	FlushBuffer() error
}

// ValidStatus reports whether 'code' can be written as the status of a response.
func ValidStatus(code int) bool { return code >= 100 && code <= 999 }

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// ResponseBuffer is the buffered [ResponseWriter]. Once flushed it turns into a pass-through writer, which
// is also what happens when a stream is copied into it.
type ResponseBuffer struct {
	resp   http.ResponseWriter
	header http.Header
	buf    *bytes.Buffer
	limit  int

	status    int
	wroteBody bool
	flushed   bool
}

// NewResponseWriter buffers writes to 'resp' up to 'limit' bytes, a negative limit disables the limit.
func NewResponseWriter(resp http.ResponseWriter, limit int) ResponseWriter {
	return newBufferResponse(resp, limit)
}

func newBufferResponse(resp http.ResponseWriter, limit int) *ResponseBuffer {
	buf, _ := bufPool.Get().(*bytes.Buffer)
	buf.Reset()

	return &ResponseBuffer{
		resp:   resp,
		header: make(http.Header),
		buf:    buf,
		limit:  limit,
	}
}

// Header returns the buffered header map, or the transport's map once flushed.
func (w *ResponseBuffer) Header() http.Header {
	if w.flushed {
		return w.resp.Header()
	}

	return w.header
}

// WriteHeader records the status code. Until body bytes are written the last call wins. Like the
// standard library it panics on codes that cannot be put on the wire.
func (w *ResponseBuffer) WriteHeader(statusCode int) {
	if !ValidStatus(statusCode) {
		panic(fmt.Sprintf("invalid WriteHeader code %v", statusCode))
	}

	if w.flushed || w.wroteBody {
		return
	}

	w.status = statusCode
}

// Status returns the status code set so far, or zero when none was set.
func (w *ResponseBuffer) Status() int { return w.status }

// Write buffers 'p' unless the buffer was flushed already.
func (w *ResponseBuffer) Write(p []byte) (int, error) {
	if w.flushed {
		return w.resp.Write(p)
	}

	if w.limit >= 0 && w.buf.Len()+len(p) > w.limit {
		return 0, ErrBufferFull
	}

	w.wroteBody = true

	return w.buf.Write(p)
}

// ReadFrom flushes what is buffered and then copies 'src' to the transport without buffering it.
func (w *ResponseBuffer) ReadFrom(src io.Reader) (int64, error) {
	w.wroteBody = true
	if err := w.FlushBuffer(); err != nil {
		return 0, err
	}

	n, err := io.Copy(w.resp, src)
	if err != nil {
		return n, errors.Wrap(err, "copy stream to response")
	}

	return n, nil
}

// Reset discards the buffered status, headers and body. It has no effect after the buffer was flushed.
func (w *ResponseBuffer) Reset() {
	if w.flushed {
		return
	}

	w.header = make(http.Header)
	w.status = 0
	w.wroteBody = false
	w.buf.Reset()
}

// discardBody drops the buffered body but keeps the status and headers.
func (w *ResponseBuffer) discardBody() {
	if w.flushed {
		return
	}

	w.wroteBody = false
	w.buf.Reset()
}

// Flushed reports whether the headers were written to the transport.
func (w *ResponseBuffer) Flushed() bool { return w.flushed }

// FlushBuffer writes the buffered status, headers and body to the transport.
func (w *ResponseBuffer) FlushBuffer() error {
	if w.flushed {
		return nil
	}

	w.flushed = true

	dst := w.resp.Header()
	for k, v := range w.header {
		dst[k] = v
	}

	if w.status != 0 {
		w.resp.WriteHeader(w.status)
	}

	if w.buf.Len() < 1 {
		return nil
	}

	if _, err := w.buf.WriteTo(w.resp); err != nil {
		return errors.Wrap(err, "write buffer to response")
	}

	return nil
}

// Flush implements http.Flusher.
func (w *ResponseBuffer) Flush() {
	if err := w.FlushBuffer(); err != nil {
		return
	}

	if f, ok := w.resp.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap allows http.ResponseController to reach the transport's writer.
func (w *ResponseBuffer) Unwrap() http.ResponseWriter { return w.resp }

// Free returns the buffer to the pool. The writer must not be used afterwards, which is why Free is not
// part of the [ResponseWriter] handlers get to see.
func (w *ResponseBuffer) Free() {
	if w.buf == nil {
		return
	}

	w.buf.Reset()
	bufPool.Put(w.buf)
	w.buf = nil
}
