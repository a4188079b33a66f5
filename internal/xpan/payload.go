package xpan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"
)

// payload is a request body in one of the three encodings the provider
// accepts. String renders it for debug logs.
type payload interface {
	encode() (body io.Reader, contentType string, err error)
	String() string
}

// jsonPayload is sent as application/json.
type jsonPayload struct {
	v any
}

func (p jsonPayload) encode() (io.Reader, string, error) {
	b, err := json.Marshal(p.v)
	if err != nil {
		return nil, "", paramError("encoding JSON body: %v", err)
	}

	return bytes.NewReader(b), "application/json", nil
}

func (p jsonPayload) String() string {
	b, err := json.Marshal(p.v)
	if err != nil {
		return fmt.Sprintf("<unencodable %T>", p.v)
	}

	return string(b)
}

// formPayload is sent as application/x-www-form-urlencoded.
type formPayload struct {
	values url.Values
}

func (p formPayload) encode() (io.Reader, string, error) {
	return strings.NewReader(p.values.Encode()), "application/x-www-form-urlencoded", nil
}

func (p formPayload) String() string {
	return p.values.Encode()
}

// multipartPayload is a multipart/form-data body with a single file part.
// Slice uploads name the part "file".
type multipartPayload struct {
	field    string
	filename string
	data     []byte
}

func (p multipartPayload) encode() (io.Reader, string, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(p.field, p.filename)
	if err != nil {
		return nil, "", paramError("creating multipart part: %v", err)
	}

	if _, err := part.Write(p.data); err != nil {
		return nil, "", paramError("writing multipart part: %v", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", paramError("closing multipart body: %v", err)
	}

	return &buf, mw.FormDataContentType(), nil
}

// String never includes the file bytes.
func (p multipartPayload) String() string {
	return fmt.Sprintf("multipart %s=%q (%d bytes)", p.field, p.filename, len(p.data))
}
