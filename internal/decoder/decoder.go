// Package decoder turns cluster response bodies into records. Its failures
// are *DecodeError so they never read as transport failures.
package decoder

import (
	"encoding/json"
	"fmt"

	"github.com/BRO3886/docbatch/internal/transport"
)

const FieldID = "_id"

type DecodeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode: " + e.Reason
	if e.Field != "" {
		msg = fmt.Sprintf("decode: field %q: %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type Record map[string]any

// String returns a required, non-empty string field.
func (r Record) String(field string) (string, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", &DecodeError{Field: field, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &DecodeError{Field: field, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	if s == "" {
		return "", &DecodeError{Field: field, Reason: "empty"}
	}
	return s, nil
}

func Decode(resp *transport.Response) (Record, error) {
	if resp == nil {
		return nil, &DecodeError{Reason: "nil response"}
	}
	if len(resp.Body) == 0 {
		return nil, &DecodeError{Reason: "empty body"}
	}
	var rec Record
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	if rec == nil {
		return nil, &DecodeError{Reason: "body is not an object"}
	}
	return rec, nil
}

// Identifier extracts the engine-assigned "_id" of an index response.
func Identifier(resp *transport.Response) (string, error) {
	rec, err := Decode(resp)
	if err != nil {
		return "", err
	}
	return rec.String(FieldID)
}

// Document is a single entry of a multi-get reply.
type Document struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Found  bool           `json:"found"`
	Source map[string]any `json:"_source"`
}

type mgetBody struct {
	Docs *[]Document `json:"docs"`
}

// Documents decodes a multi-get body of the form {"docs":[...]}.
func Documents(resp *transport.Response) ([]Document, error) {
	if resp == nil || len(resp.Body) == 0 {
		return nil, &DecodeError{Reason: "empty body"}
	}
	var body mgetBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	if body.Docs == nil {
		return nil, &DecodeError{Field: "docs", Reason: "missing"}
	}
	return *body.Docs, nil
}
