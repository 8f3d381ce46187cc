package bmicro

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

type statusCoder interface{ StatusCode() int }

type statuser interface{ Status() int }

type messager interface{ Message() string }

// failure is anything a handler ended with that is not a value: a returned error or a recovered panic.
type failure struct {
	err   error
	value any
	stack []byte
}

func failureOf(v any, stack []byte) failure {
	if err, ok := v.(error); ok {
		return failure{err: err, stack: stack}
	}

	return failure{value: v, stack: stack}
}

// SendError maps 'err' onto an error response and logs it with the standard logger. Errors that carry a
// status code (see [StatusOf]) are sent with that code and their message, anything else becomes a
// 500 with a generic message.
func SendError(w http.ResponseWriter, err error) error {
	return sendFailure(w, failure{err: err}, false, NewStdLogger(nil))
}

// StatusOf returns the status code carried by 'err', looking for an [*Error] first and then for errors
// implementing StatusCode() int or Status() int. It returns false if no status is carried, or if the
// carried code is not one [ValidStatus] accepts.
func StatusOf(err error) (int, bool) {
	code, _, ok := carriedStatus(err)
	return code, ok
}

func carriedStatus(v any) (int, string, bool) {
	if err, ok := v.(error); ok {
		if e, ok := asError(err); ok && ValidStatus(int(e.Code())) {
			return int(e.Code()), e.Message(), true
		}

		var sc statusCoder
		if errors.As(err, &sc) && ValidStatus(sc.StatusCode()) {
			return sc.StatusCode(), messageOf(sc), true
		}

		var st statuser
		if errors.As(err, &st) && ValidStatus(st.Status()) {
			return st.Status(), messageOf(st), true
		}

		return 0, "", false
	}

	switch t := v.(type) {
	case statusCoder:
		if ValidStatus(t.StatusCode()) {
			return t.StatusCode(), messageOf(t), true
		}
	case statuser:
		if ValidStatus(t.Status()) {
			return t.Status(), messageOf(t), true
		}
	}

	return 0, "", false
}

func messageOf(v any) string {
	switch t := v.(type) {
	case messager:
		return t.Message()
	case error:
		return t.Error()
	default:
		return fmt.Sprint(v)
	}
}

func sendFailure(w http.ResponseWriter, f failure, dev bool, logs Logger) error {
	var subject any = f.value
	if f.err != nil {
		subject = f.err
	}

	code, msg, ok := carriedStatus(subject)
	if !ok {
		code, msg = http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}

	if msg == "" {
		msg = http.StatusText(code)
	}

	if dev {
		msg = f.trace()
	}

	f.log(code, logs)

	return send(w, code, msg, false)
}

func (f failure) log(code int, logs Logger) {
	if f.err != nil {
		logs.LogHandlerError(code, f.err)
		return
	}

	logs.LogThrownValue(code, f.value)
}

func (f failure) trace() string {
	if f.err != nil {
		if len(f.stack) > 0 {
			return fmt.Sprintf("%+v\n\n%s", f.err, f.stack)
		}

		return fmt.Sprintf("%+v", f.err)
	}

	return fmt.Sprintf("%v\n\n%s", f.value, f.stack)
}
