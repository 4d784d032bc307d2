package kvault

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestArchiveIsNeverText(t *testing.T) {
	for _, v := range []Value{Int32Value(7), Int64Value(-7), Float32Value(1.5), Float64Value(2.5), BoolValue(false)} {
		data, err := encode(v)
		if err != nil {
			t.Fatalf("encode %s: %v", v.Kind(), err)
		}
		if !bytes.HasPrefix(data, archiveHeader) {
			t.Errorf("%s: missing archive header", v.Kind())
		}
		got, err := decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", v.Kind(), err)
		}
		if got != v {
			t.Errorf("expected %#v, got %#v", v, got)
		}
	}
}

func TestStringsStoredAsUTF8(t *testing.T) {
	data, err := encode(StringValue("héllo"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != "héllo" {
		t.Errorf("expected raw UTF-8, got %q", data)
	}
}

func TestCoercion(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  int32
		ok    bool
	}{
		{"int32", Int32Value(-5), -5, true},
		{"narrowed int64", Int64Value(1 << 40), 0, true},
		{"truncated double", Float64Value(-2.9), -2, true},
		{"double past range", Float64Value(1e12), 0, false},
		{"nan", Float64Value(math.NaN()), 0, false},
		{"bool", BoolValue(true), 1, true},
		{"string", StringValue("5"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.AsInt32()
			if tt.ok != (err == nil) {
				t.Fatalf("expected ok=%v, got err=%v", tt.ok, err)
			}
			if err != nil && !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("expected ErrTypeMismatch, got %v", err)
			}
			if tt.ok && got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestBoolCoercion(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  bool
		ok    bool
	}{
		{"bool", BoolValue(true), true, true},
		{"zero int", Int32Value(0), false, true},
		{"non-zero long", Int64Value(-3), true, true},
		{"double", Float64Value(0.5), true, true},
		{"nan double", Float64Value(math.NaN()), false, false},
		{"nan float", Float32Value(float32(math.NaN())), false, false},
		{"string", StringValue("true"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.AsBool()
			if tt.ok != (err == nil) {
				t.Fatalf("expected ok=%v, got err=%v", tt.ok, err)
			}
			if err != nil && !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("expected ErrTypeMismatch, got %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMissingValue(t *testing.T) {
	var v Value
	if !v.IsMissing() {
		t.Error("zero Value should be missing")
	}
	if _, err := v.AsBool(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if v.String() != "<missing>" {
		t.Errorf("unexpected display %q", v.String())
	}
}

func TestValueDisplay(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{StringValue("abc"), "abc"},
		{Int32Value(-12), "-12"},
		{Int64Value(math.MaxInt64), "9223372036854775807"},
		{Float32Value(0.1), "0.1"},
		{Float64Value(2.5), "2.5"},
		{BoolValue(true), "true"},
	}
	for _, tt := range tests {
		if got := tt.value.String(); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.value.Kind(), tt.want, got)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"string": KindString,
		"int":    KindInt32,
		"long":   KindInt64,
		"float":  KindFloat32,
		"double": KindFloat64,
		"bool":   KindBool,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("bytes"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
