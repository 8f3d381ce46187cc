package bmicro

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
)

const (
	contentTypeBinary = "application/octet-stream"
	contentTypeJSON   = "application/json; charset=utf-8"
)

type noContent struct{}

// NoContent can be returned by a handler to respond with 204 and an empty body.
var NoContent any = noContent{}

// valueKind classifies the values that can be sent.
type valueKind int

const (
	kindEmpty valueKind = iota
	kindBinary
	kindStream
	kindRaw
	kindStructured
)

func classify(v any) valueKind {
	switch v.(type) {
	case nil, noContent:
		return kindEmpty
	case []byte:
		return kindBinary
	case string:
		return kindRaw
	case io.Reader:
		return kindStream
	default:
		return kindStructured
	}
}

// Send writes 'v' as the complete response with status 'code'. Values that are not bytes, strings or
// streams are encoded as compact JSON. Headers that are already set on 'w' are never overwritten. If 'v'
// cannot be encoded an error is returned and nothing is written.
func Send(w http.ResponseWriter, code int, v any) error {
	return send(w, code, v, false)
}

func send(w http.ResponseWriter, code int, v any, pretty bool) error {
	switch classify(v) {
	case kindEmpty:
		w.Header().Del("Content-Length")
		w.WriteHeader(code)
		return nil
	case kindBinary:
		b, _ := v.([]byte)
		setDefaultHeader(w, "Content-Type", contentTypeBinary)
		return writeBody(w, code, b)
	case kindStream:
		return sendStream(w, code, v.(io.Reader)) //nolint:forcetypeassert
	case kindRaw:
		s, _ := v.(string)
		return writeBody(w, code, []byte(s))
	case kindStructured:
	}

	// encode before any header is touched, a failure must leave the response as it was.
	b, err := encodeJSON(v, pretty)
	if err != nil {
		return err
	}

	setDefaultHeader(w, "Content-Type", contentTypeJSON)

	return writeBody(w, code, b)
}

func encodeJSON(v any, pretty bool) ([]byte, error) {
	var (
		b   []byte
		err error
	)

	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "encode %T as json", v)
	}

	return b, nil
}

func sendStream(w http.ResponseWriter, code int, r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	setDefaultHeader(w, "Content-Type", contentTypeBinary)
	w.WriteHeader(code)

	// io.Copy would prefer the reader's WriteTo and end up in the buffer.
	var err error
	if rf, ok := w.(io.ReaderFrom); ok {
		_, err = rf.ReadFrom(r)
	} else {
		_, err = io.Copy(w, r)
	}

	if err != nil {
		return errors.Wrap(err, "stream response body")
	}

	return nil
}

func writeBody(w http.ResponseWriter, code int, b []byte) error {
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)

	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "write response body")
	}

	return nil
}

func setDefaultHeader(w http.ResponseWriter, k, v string) {
	if w.Header().Get(k) != "" {
		return
	}

	w.Header().Set(k, v)
}
