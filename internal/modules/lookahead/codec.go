package lookahead

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// wireResult has Result's fields without its methods, so msgpack encodes
// the struct instead of recursing into MarshalBinary.
type wireResult Result

// MarshalBinary encodes the result as msgpack for hand-off across a process
// boundary. Metadata must itself be msgpack-encodable.
func (r *Result) MarshalBinary() ([]byte, error) {
	data, err := msgpack.Marshal((*wireResult)(r))
	if err != nil {
		return nil, fmt.Errorf("encode lookahead result: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes a result produced by MarshalBinary. Metadata
// comes back in msgpack's generic form (maps, slices, scalars).
func (r *Result) UnmarshalBinary(data []byte) error {
	if err := msgpack.Unmarshal(data, (*wireResult)(r)); err != nil {
		return fmt.Errorf("decode lookahead result: %w", err)
	}
	return nil
}
