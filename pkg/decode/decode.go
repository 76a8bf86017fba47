// Package decode provides payload decoders for DecodeStage
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jzx17/httptask/pkg/types"
)

// ErrEmptyBody indicates there was no payload to decode
var ErrEmptyBody = errors.New("empty body")

// JSON decodes a JSON payload into T. Unknown fields are ignored.
func JSON[T any]() types.Decoder[T] {
	return types.DecoderFunc[T](func(data []byte) (T, error) {
		var v T
		if len(bytes.TrimSpace(data)) == 0 {
			return v, ErrEmptyBody
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return v, fmt.Errorf("decode json: %w", err)
		}
		return v, nil
	})
}

// StrictJSON decodes a single JSON document into T and rejects unknown fields
func StrictJSON[T any]() types.Decoder[T] {
	return types.DecoderFunc[T](func(data []byte) (T, error) {
		var v T
		if len(bytes.TrimSpace(data)) == 0 {
			return v, ErrEmptyBody
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			return v, fmt.Errorf("decode json: %w", err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return v, errors.New("decode json: trailing data after document")
		}
		return v, nil
	})
}

// YAML decodes a YAML payload into T
func YAML[T any]() types.Decoder[T] {
	return types.DecoderFunc[T](func(data []byte) (T, error) {
		var v T
		if len(bytes.TrimSpace(data)) == 0 {
			return v, ErrEmptyBody
		}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return v, fmt.Errorf("decode yaml: %w", err)
		}
		return v, nil
	})
}

// StrictYAML decodes a YAML payload into T and rejects unknown fields
func StrictYAML[T any]() types.Decoder[T] {
	return types.DecoderFunc[T](func(data []byte) (T, error) {
		var v T
		if len(bytes.TrimSpace(data)) == 0 {
			return v, ErrEmptyBody
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&v); err != nil {
			return v, fmt.Errorf("decode yaml: %w", err)
		}
		return v, nil
	})
}

// String returns the payload as text
func String() types.Decoder[string] {
	return types.DecoderFunc[string](func(data []byte) (string, error) {
		return string(data), nil
	})
}

// Bytes returns a copy of the payload
func Bytes() types.Decoder[[]byte] {
	return types.DecoderFunc[[]byte](func(data []byte) ([]byte, error) {
		return append([]byte(nil), data...), nil
	})
}

// Func adapts fn to a Decoder
func Func[T any](fn func([]byte) (T, error)) types.Decoder[T] {
	return types.DecoderFunc[T](fn)
}
