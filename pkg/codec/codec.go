// Package codec converts structured parameter and result values to and from
// the textual encoding stored in generic TEXT columns. It isolates JSON-shape
// assumptions from the storage layer so the schema stays portable across
// backends with different native JSON support.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
)

// SerializationError indicates an encoded payload could not be produced or
// parsed. Decode never returns a partial or default value alongside it.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failed: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support for SerializationError.
func (e *SerializationError) Is(target error) bool {
	_, ok := target.(*SerializationError)
	return ok
}

// Encode produces a deterministic textual encoding of nested
// mapping/sequence/scalar structures. Map keys are emitted in sorted order,
// so equal values encode to equal text.
func Encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", &SerializationError{Err: err}
	}
	// Encoder appends a trailing newline; the stored text carries none.
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Decode is the exact inverse of Encode for any value Encode produced.
// Numbers come back as json.Number so the round trip is lossless; malformed
// or trailing input fails with SerializationError rather than yielding a
// partial value.
func Decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &SerializationError{Err: err}
	}
	if dec.More() {
		return nil, &SerializationError{Err: fmt.Errorf("trailing data after value")}
	}
	return v, nil
}

// DecodeMap decodes text that must hold a mapping, as used by the parameter
// and result columns.
func DecodeMap(text string) (map[string]any, error) {
	v, err := Decode(text)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &SerializationError{Err: fmt.Errorf("expected mapping, got %T", v)}
	}
	return m, nil
}

// DecodeRepaired attempts to salvage a malformed legacy payload before
// decoding it. Only the one-shot legacy import uses this; the strict Decode
// contract is unchanged.
func DecodeRepaired(text string) (any, error) {
	v, err := Decode(text)
	if err == nil {
		return v, nil
	}
	repaired, repErr := jsonrepair.JSONRepair(text)
	if repErr != nil {
		return nil, &SerializationError{Err: repErr}
	}
	return Decode(repaired)
}
