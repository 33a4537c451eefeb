package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownShape is returned for payloads that are neither a JSON array nor
// a {"data": [...]} envelope.
var ErrUnknownShape = errors.New("unknown payload shape")

// Shape is one of the known upstream payload layouts.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeArray
	ShapeEnvelope
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

const leadingSpace = " \t\r\n\ufeff"

// DetectShape looks at the first significant byte of a payload.
func DetectShape(data []byte) Shape {
	trimmed := bytes.TrimLeft(data, leadingSpace)
	if len(trimmed) == 0 {
		return ShapeUnknown
	}
	switch trimmed[0] {
	case '[':
		return ShapeArray
	case '{':
		return ShapeEnvelope
	default:
		return ShapeUnknown
	}
}

type envelope struct {
	Data *[]map[string]any `json:"data"`
}

// DecodeItems decodes a payload into raw item maps. Numbers are kept as
// json.Number so they can be validated per field later.
func DecodeItems(data []byte) ([]map[string]any, Shape, error) {
	data = bytes.TrimLeft(data, leadingSpace)
	shape := DetectShape(data)

	switch shape {
	case ShapeArray:
		var items []map[string]any
		if err := decode(data, &items); err != nil {
			return nil, shape, fmt.Errorf("decode array payload: %w", err)
		}
		return items, shape, nil

	case ShapeEnvelope:
		var env envelope
		if err := decode(data, &env); err != nil {
			return nil, shape, fmt.Errorf("decode envelope payload: %w", err)
		}
		if env.Data == nil {
			return nil, shape, fmt.Errorf("%w: object without a data array", ErrUnknownShape)
		}
		return *env.Data, shape, nil

	default:
		return nil, shape, ErrUnknownShape
	}
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
