package xpan

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
)

// envelope is the status part of the provider's uniform JSON wrapper. The
// payload fields sit next to it at the top level. The file API reports
// errno/errmsg; the PCS transfer API reports error_code/error_msg.
type envelope struct {
	Errno     *int            `json:"errno"`
	Errmsg    string          `json:"errmsg"`
	ErrorCode *int            `json:"error_code"`
	ErrorMsg  string          `json:"error_msg"`
	RequestID json.RawMessage `json:"request_id"`
}

// successStatus reports whether an HTTP status is treated as success.
// 206 is listed explicitly for ranged responses.
func successStatus(code int) bool {
	return (code >= http.StatusOK && code < http.StatusMultipleChoices) || code == http.StatusPartialContent
}

// decodeEnvelope is the first decode attempt. ok is false when the body is
// not a JSON object of the enveloped shape (a bare array, a bare scalar, or
// fields of unexpected types); the caller then decodes the bare payload.
func decodeEnvelope(body []byte) (envelope, bool) {
	var env envelope

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}

	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, false
	}

	return env, true
}

// err returns the *APIError described by the envelope, or nil when the
// envelope reports success (or reports nothing).
func (e envelope) err(httpStatus int) error {
	reqID := rawRequestID(e.RequestID)

	if e.Errno != nil && *e.Errno != 0 {
		return &APIError{Errno: *e.Errno, Message: e.Errmsg, HTTPStatus: httpStatus, RequestID: reqID}
	}

	if e.ErrorCode != nil && *e.ErrorCode != 0 {
		return &APIError{Errno: *e.ErrorCode, Message: e.ErrorMsg, HTTPStatus: httpStatus, RequestID: reqID}
	}

	return nil
}

// rawRequestID renders request_id as text whether it arrived as a JSON
// number or a JSON string.
func rawRequestID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	if s, err := strconv.Unquote(string(raw)); err == nil {
		return s
	}

	return string(raw)
}

// decodePayload is the second decode attempt: the body decoded directly as
// the result type. Enveloped bodies decode here too because the payload
// fields are flattened beside errno.
func decodePayload[T any](body []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, decodeError("response body", err)
	}

	return &out, nil
}

// decodeResponse turns a raw status and body into a typed result or a typed
// error: HTTP failure first, then the envelope, then the payload.
func decodeResponse[T any](status int, body []byte) (*T, error) {
	if !successStatus(status) {
		return nil, &APIError{Errno: status, Message: string(body), HTTPStatus: status}
	}

	if env, ok := decodeEnvelope(body); ok {
		if err := env.err(status); err != nil {
			return nil, err
		}
	}

	out, err := decodePayload[T](body)
	if err != nil {
		return nil, err
	}

	return out, nil
}
