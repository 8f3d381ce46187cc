package bmicro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/advdv/bmicro/internal/rawbody"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultBodyLimit is the body size limit when neither the dispatcher nor the decoder call sets one.
const DefaultBodyLimit = "1mb"

// binaryUnits maps the short units of a limit onto the binary ones, so "1mb" is 1024*1024 bytes.
var binaryUnits = []struct{ short, binary string }{
	{"kb", "kib"}, {"mb", "mib"}, {"gb", "gib"}, {"tb", "tib"}, {"pb", "pib"},
}

// ParseLimit parses a human readable body size such as "10b", "512kb" or "1mb". The units kb, mb, gb,
// tb and pb are powers of 1024 regardless of case, the explicit binary units (kib, mib, ...) are
// accepted as well.
func ParseLimit(limit string) (uint64, error) {
	s := strings.ToLower(strings.TrimSpace(limit))
	for _, u := range binaryUnits {
		if strings.HasSuffix(s, u.short) {
			s = strings.TrimSuffix(s, u.short) + u.binary
			break
		}
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse limit %q", limit)
	}

	return n, nil
}

// BodyOptions configure a single decoder call.
type BodyOptions struct {
	// Limit is the maximum body size in a human readable form such as "10b", "512kb" or "1mb", see
	// [ParseLimit].
	Limit string
	// Encoding is the charset used to decode text. Empty means the charset of the Content-Type header.
	Encoding string
}

// BodyOption changes the [BodyOptions] of a decoder call.
type BodyOption func(*BodyOptions)

// WithLimit sets the maximum body size.
func WithLimit(limit string) BodyOption {
	return func(o *BodyOptions) { o.Limit = limit }
}

// WithEncoding sets the charset used to decode text bodies.
func WithEncoding(enc string) BodyOption {
	return func(o *BodyOptions) { o.Encoding = enc }
}

func bodyOptions(r *http.Request, opts []BodyOption) BodyOptions {
	o := BodyOptions{Limit: DefaultBodyLimit}
	if t, ok := trackedFromContext(r.Context()); ok && t.limit != "" {
		o.Limit = t.limit
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Decode reads the body of 'r' and returns the result of 'parse'. The body is read from the request at
// most once, later calls for the same request parse the cached bytes again. So 'parse' must not modify
// the bytes it is given.
func Decode[T any](r *http.Request, parse func(raw []byte) (T, error), opts ...BodyOption) (T, error) {
	raw, err := readBody(r, bodyOptions(r, opts))
	if err != nil {
		var zero T
		return zero, err
	}

	return parse(raw)
}

// Buffer returns a copy of the raw request body.
func Buffer(r *http.Request, opts ...BodyOption) ([]byte, error) {
	return Decode(r, func(raw []byte) ([]byte, error) {
		return bytes.Clone(raw), nil
	}, opts...)
}

// Text returns the request body decoded with the requested charset, or the charset declared by the
// Content-Type header. Bodies without a declared charset are decoded as UTF-8.
func Text(r *http.Request, opts ...BodyOption) (string, error) {
	enc, err := resolveEncoding(r, bodyOptions(r, opts).Encoding)
	if err != nil {
		return "", CreateError(CodeBadRequest, "Invalid body", err)
	}

	return Decode(r, func(raw []byte) (string, error) {
		b, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", CreateError(CodeBadRequest, "Invalid body", errors.Wrap(err, "decode text"))
		}

		return string(b), nil
	}, opts...)
}

// JSON decodes the request body as JSON into 'v'. Malformed JSON is reported as a 400 error.
func JSON(r *http.Request, v any, opts ...BodyOption) error {
	text, err := Text(r, opts...)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(text), v); err != nil {
		return CreateError(CodeBadRequest, "Invalid JSON", errors.Wrap(err, "unmarshal body"))
	}

	return nil
}

// DecodeJSON is the generic form of [JSON].
func DecodeJSON[T any](r *http.Request, opts ...BodyOption) (T, error) {
	var v T
	if err := JSON(r, &v, opts...); err != nil {
		return v, err
	}

	return v, nil
}

// Query looks up 'path' in the JSON request body using the gjson path syntax. The result does not
// exist if nothing matched the path. Malformed JSON is reported as a 400 error.
func Query(r *http.Request, path string, opts ...BodyOption) (gjson.Result, error) {
	text, err := Text(r, opts...)
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.Valid(text) {
		return gjson.Result{}, CreateError(CodeBadRequest, "Invalid JSON", errors.New("body is not valid json"))
	}

	return gjson.Get(text, path), nil
}

func readBody(r *http.Request, o BodyOptions) ([]byte, error) {
	t, ok := trackedFromContext(r.Context())
	if !ok {
		return nil, NewError(CodeInternalServerError, errors.New("bmicro: request is not tracked by a dispatcher"))
	}

	entry, ok := t.cache.entry(t.token)
	if !ok {
		return nil, NewError(CodeInternalServerError, errors.New("bmicro: request body was released"))
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.cached {
		return entry.raw, nil
	}

	limit, err := ParseLimit(o.Limit)
	if err != nil {
		return nil, NewError(CodeInternalServerError, errors.Wrap(err, "bmicro: body limit"))
	}

	body := r.Body
	if body == nil {
		body = http.NoBody
	}

	raw, err := rawbody.Read(body, int64(limit), r.ContentLength) //nolint:gosec
	if err != nil {
		if rawbody.IsTooLarge(err) {
			return nil, CreateError(CodeRequestEntityTooLarge, fmt.Sprintf("Body exceeded %s limit", o.Limit), err)
		}

		return nil, CreateError(CodeBadRequest, "Invalid body", err)
	}

	entry.raw, entry.cached = raw, true

	return raw, nil
}

func resolveEncoding(r *http.Request, name string) (encoding.Encoding, error) {
	if name == "" {
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			ct = "text/plain"
		}

		_, params, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, errors.Wrapf(err, "parse content type %q", ct)
		}

		name = params["charset"]
	}

	if name == "" {
		return unicode.UTF8, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unsupported charset %q", name)
	}

	return enc, nil
}
