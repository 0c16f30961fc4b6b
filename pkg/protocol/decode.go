package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Decode converts a payload into T. Values that already have type T or *T
// are returned directly; anything else is re-encoded through JSON, which
// covers the generic maps produced by wire transports.
func Decode[T any](payload any) (T, error) {
	var out T
	switch v := payload.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return out, fmt.Errorf("decode %T: nil pointer", out)
		}
		return *v, nil
	case nil:
		return out, fmt.Errorf("decode %T: empty payload", out)
	}

	data, err := sonic.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	if err := sonic.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}

// DecodeInto is the non-generic form of Decode for callers holding a pointer.
func DecodeInto(payload any, target any) error {
	if payload == nil {
		return fmt.Errorf("decode %T: empty payload", target)
	}
	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("decode %T: %w", target, err)
	}
	return sonic.Unmarshal(data, target)
}
