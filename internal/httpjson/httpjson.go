// Package httpjson decodes request bodies into per-endpoint structs and
// writes JSON responses.
package httpjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

type (
	DecodeError struct {
		cause error
	}
)

const (
	MaxBody = 1 << 20
)

func (d DecodeError) Error() string {
	return fmt.Sprintf("invalid request body: %v", d.cause)
}

func (d DecodeError) Unwrap() error {
	return d.cause
}

// Decode reads exactly one JSON value from the request body into out,
// unknown fields and trailing data are rejected.
func Decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		return DecodeError{cause: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return DecodeError{cause: errors.New("unexpected data after the json object")}
	}
	return nil
}

// Marshal encodes v followed by a newline, the same output as
// json.Encoder.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(w http.ResponseWriter, status int, v interface{}) error {
	buf, err := Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"unable to encode response"}`, http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(status)
	_, err = w.Write(buf)
	return err
}

func Error(w http.ResponseWriter, status int, msg string) error {
	return Write(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
