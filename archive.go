package kvault

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// archiveHeader prefixes every boxed number. 0xFF never appears in UTF-8,
// so an archive cannot be read back as a string.
var archiveHeader = []byte{0xFF, 'k', 'v', 0x01}

// encode turns v into the bytes stored with the backend.
func encode(v Value) ([]byte, error) {
	if v.kind == KindString {
		if !utf8.ValidString(v.s) {
			return nil, ErrInvalidString
		}
		return []byte(v.s), nil
	}

	var box proto.Message
	switch v.kind {
	case KindInt32:
		box = wrapperspb.Int32(int32(v.i))
	case KindInt64:
		box = wrapperspb.Int64(v.i)
	case KindFloat32:
		box = wrapperspb.Float(float32(v.f))
	case KindFloat64:
		box = wrapperspb.Double(v.f)
	case KindBool:
		box = wrapperspb.Bool(v.b)
	default:
		return nil, fmt.Errorf("cannot store a %s value", v.kind)
	}

	packed, err := anypb.New(box)
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", v.kind, err)
	}
	body, err := proto.Marshal(packed)
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", v.kind, err)
	}
	return append(append(make([]byte, 0, len(archiveHeader)+len(body)), archiveHeader...), body...), nil
}

// decode reverses encode. Bytes that are neither an archive nor valid
// UTF-8 are a type mismatch.
func decode(data []byte) (Value, error) {
	if !bytes.HasPrefix(data, archiveHeader) {
		if !utf8.Valid(data) {
			return Value{}, fmt.Errorf("%w: stored bytes are neither text nor an archive", ErrTypeMismatch)
		}
		return StringValue(string(data)), nil
	}

	var packed anypb.Any
	if err := proto.Unmarshal(data[len(archiveHeader):], &packed); err != nil {
		return Value{}, fmt.Errorf("%w: unreadable archive: %v", ErrTypeMismatch, err)
	}
	box, err := packed.UnmarshalNew()
	if err != nil {
		return Value{}, fmt.Errorf("%w: unreadable archive: %v", ErrTypeMismatch, err)
	}

	switch m := box.(type) {
	case *wrapperspb.Int32Value:
		return Int32Value(m.GetValue()), nil
	case *wrapperspb.Int64Value:
		return Int64Value(m.GetValue()), nil
	case *wrapperspb.FloatValue:
		return Float32Value(m.GetValue()), nil
	case *wrapperspb.DoubleValue:
		return Float64Value(m.GetValue()), nil
	case *wrapperspb.BoolValue:
		return BoolValue(m.GetValue()), nil
	default:
		return Value{}, fmt.Errorf("%w: archive holds %s", ErrTypeMismatch, packed.GetTypeUrl())
	}
}
