package main

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/spf13/cast"

	"github.com/benaskins/kvault"
)

// parseValue converts a command-line argument into a value of kind.
func parseValue(kind kvault.Kind, raw string) (kvault.Value, error) {
	var (
		v   kvault.Value
		err error
	)
	switch kind {
	case kvault.KindString:
		return kvault.StringValue(raw), nil
	case kvault.KindInt32:
		var n int64
		if n, err = parseDecimal(raw); err == nil && (n < math.MinInt32 || n > math.MaxInt32) {
			err = errors.New("out of int32 range")
		}
		v = kvault.Int32Value(int32(n))
	case kvault.KindInt64:
		var n int64
		n, err = parseDecimal(raw)
		v = kvault.Int64Value(n)
	case kvault.KindFloat32:
		var f float32
		f, err = cast.ToFloat32E(raw)
		v = kvault.Float32Value(f)
	case kvault.KindFloat64:
		var f float64
		f, err = cast.ToFloat64E(raw)
		v = kvault.Float64Value(f)
	case kvault.KindBool:
		var b bool
		b, err = cast.ToBoolE(raw)
		v = kvault.BoolValue(b)
	default:
		return kvault.Value{}, fmt.Errorf("cannot parse a %s value", kind)
	}
	if err != nil {
		return kvault.Value{}, fmt.Errorf("parsing %q as %s: %w", raw, kind, err)
	}
	return v, nil
}

// decimalInt is a base-10 integer without leading zeros, so "010" is not
// read as octal and "0x10" not as hex.
var decimalInt = regexp.MustCompile(`^[+-]?(0|[1-9][0-9]*)$`)

// parseDecimal parses a base-10 int64, rejecting values that overflow.
func parseDecimal(raw string) (int64, error) {
	if !decimalInt.MatchString(raw) {
		return 0, errors.New("not a decimal integer")
	}
	return cast.ToInt64E(raw)
}

// convert reads v as kind, the way the typed accessors do.
func convert(v kvault.Value, kind kvault.Kind) (kvault.Value, error) {
	switch kind {
	case kvault.KindString:
		s, err := v.AsString()
		return kvault.StringValue(s), err
	case kvault.KindInt32:
		n, err := v.AsInt32()
		return kvault.Int32Value(n), err
	case kvault.KindInt64:
		n, err := v.AsInt64()
		return kvault.Int64Value(n), err
	case kvault.KindFloat32:
		f, err := v.AsFloat32()
		return kvault.Float32Value(f), err
	case kvault.KindFloat64:
		f, err := v.AsFloat64()
		return kvault.Float64Value(f), err
	case kvault.KindBool:
		b, err := v.AsBool()
		return kvault.BoolValue(b), err
	default:
		return v, nil
	}
}
