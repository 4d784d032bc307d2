package kvault

import (
	"fmt"
	"math"

	"github.com/spf13/cast"
)

// Kind identifies which of the supported types a Value holds.
type Kind uint8

const (
	KindMissing Kind = iota
	KindString
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindString:
		return "string"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses the names accepted on the command line. "int" and
// "long" follow the 32/64-bit naming of the typed accessors.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string", "str":
		return KindString, nil
	case "int", "int32":
		return KindInt32, nil
	case "long", "int64":
		return KindInt64, nil
	case "float", "float32":
		return KindFloat32, nil
	case "double", "float64":
		return KindFloat64, nil
	case "bool", "boolean":
		return KindBool, nil
	default:
		return KindMissing, fmt.Errorf("unknown value type %q", s)
	}
}

// Value is one stored value: a string, a number of a fixed width, or a
// bool. The zero Value is missing.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func StringValue(s string) Value   { return Value{kind: KindString, s: s} }
func Int32Value(i int32) Value     { return Value{kind: KindInt32, i: int64(i)} }
func Int64Value(i int64) Value     { return Value{kind: KindInt64, i: i} }
func Float32Value(f float32) Value { return Value{kind: KindFloat32, f: float64(f)} }
func Float64Value(f float64) Value { return Value{kind: KindFloat64, f: f} }
func BoolValue(b bool) Value       { return Value{kind: KindBool, b: b} }

// Kind reports what the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v holds nothing.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// boxed returns the number as its native Go type, for coercion.
func (v Value) boxed() any {
	switch v.kind {
	case KindInt32:
		return int32(v.i)
	case KindInt64:
		return v.i
	case KindFloat32:
		return float32(v.f)
	case KindFloat64:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) numeric() bool {
	return v.kind >= KindInt32 && v.kind <= KindBool
}

func (v Value) mismatch(want Kind) error {
	if v.kind == KindMissing {
		return ErrNotFound
	}
	return fmt.Errorf("%w: stored %s, requested %s", ErrTypeMismatch, v.kind, want)
}

// AsString returns the string held by v. Numbers are never rendered as
// strings.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.s, nil
}

// AsInt32 returns v as an int32, narrowing wider numbers and truncating
// floats toward zero. Floats outside the int32 range are a mismatch.
func (v Value) AsInt32() (int32, error) {
	if !v.numeric() {
		return 0, v.mismatch(KindInt32)
	}
	if (v.kind == KindFloat32 || v.kind == KindFloat64) && !fitsInt32(v.f) {
		return 0, v.mismatch(KindInt32)
	}
	n, err := cast.ToInt32E(v.boxed())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return n, nil
}

// AsInt64 returns v as an int64, truncating floats toward zero. Floats
// outside the int64 range are a mismatch.
func (v Value) AsInt64() (int64, error) {
	if !v.numeric() {
		return 0, v.mismatch(KindInt64)
	}
	if (v.kind == KindFloat32 || v.kind == KindFloat64) && !fitsInt64(v.f) {
		return 0, v.mismatch(KindInt64)
	}
	n, err := cast.ToInt64E(v.boxed())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return n, nil
}

// AsFloat32 returns v as a float32, rounding doubles to nearest.
func (v Value) AsFloat32() (float32, error) {
	if !v.numeric() {
		return 0, v.mismatch(KindFloat32)
	}
	f, err := cast.ToFloat32E(v.boxed())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return f, nil
}

// AsFloat64 returns v as a float64.
func (v Value) AsFloat64() (float64, error) {
	if !v.numeric() {
		return 0, v.mismatch(KindFloat64)
	}
	f, err := cast.ToFloat64E(v.boxed())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return f, nil
}

// AsBool returns v as a bool; numbers are true when non-zero. NaN is a
// mismatch, as it is for the integer accessors.
func (v Value) AsBool() (bool, error) {
	if !v.numeric() {
		return false, v.mismatch(KindBool)
	}
	if (v.kind == KindFloat32 || v.kind == KindFloat64) && math.IsNaN(v.f) {
		return false, v.mismatch(KindBool)
	}
	b, err := cast.ToBoolE(v.boxed())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return b, nil
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case KindMissing:
		return "<missing>"
	case KindString:
		return v.s
	default:
		return cast.ToString(v.boxed())
	}
}

// fitsInt32 reports whether f truncates to a representable int32.
func fitsInt32(f float64) bool {
	return f > math.MinInt32-1 && f < math.MaxInt32+1
}

// fitsInt64 reports whether f truncates to a representable int64.
func fitsInt64(f float64) bool {
	return f >= -0x1p63 && f < 0x1p63
}
