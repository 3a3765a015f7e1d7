package pojie

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Encoder turns snapshots, results and wordlists into bytes and back.
type Encoder interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONEncoder writes with encoding/json and reads with sonic.
type JSONEncoder struct {
	// Indent pretty-prints the output when non-empty.
	Indent string
}

func (e *JSONEncoder) Encode(v any) ([]byte, error) {
	if e != nil && e.Indent != "" {
		return json.MarshalIndent(v, "", e.Indent)
	}
	return json.Marshal(v)
}

func (*JSONEncoder) Decode(data []byte, v any) error {
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("pojie: decode %d bytes: %w", len(data), err)
	}
	return nil
}
