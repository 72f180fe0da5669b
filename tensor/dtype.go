// Package tensor provides the dense, typed arrays stored by acton databases.
//
// Arrays are row-major and little-endian. Element types are fixed-size
// numbers or fixed-width byte strings (numpy "S<n>" semantics: values are
// NUL padded and trailing NULs are stripped on read).
package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the element families.
type Kind uint8

const (
	// KindInvalid is the zero Kind.
	KindInvalid Kind = iota
	// KindFloat32 is an IEEE-754 binary32 element.
	KindFloat32
	// KindFloat64 is an IEEE-754 binary64 element.
	KindFloat64
	// KindInt32 is a signed 32-bit integer element.
	KindInt32
	// KindInt64 is a signed 64-bit integer element.
	KindInt64
	// KindBytes is a fixed-width byte string element.
	KindBytes
)

// DType is an element type. DTypes are comparable.
type DType struct {
	kind  Kind
	width int
}

var (
	// Float32 is the default dtype for both features and labels.
	Float32 = DType{kind: KindFloat32}
	// Float64 is a 64-bit float dtype.
	Float64 = DType{kind: KindFloat64}
	// Int32 is a 32-bit integer dtype.
	Int32 = DType{kind: KindInt32}
	// Int64 is a 64-bit integer dtype.
	Int64 = DType{kind: KindInt64}
)

// Bytes returns a fixed-width byte string dtype. Widths below 1 are clamped to 1.
func Bytes(width int) DType {
	if width < 1 {
		width = 1
	}
	return DType{kind: KindBytes, width: width}
}

// Kind returns the element family.
func (d DType) Kind() Kind { return d.kind }

// Valid reports whether d is a usable dtype.
func (d DType) Valid() bool {
	switch d.kind {
	case KindFloat32, KindFloat64, KindInt32, KindInt64:
		return true
	case KindBytes:
		return d.width > 0
	default:
		return false
	}
}

// IsNumeric reports whether elements are numbers.
func (d DType) IsNumeric() bool {
	return d.kind != KindBytes && d.kind != KindInvalid
}

// ItemSize is the size of one element in bytes.
func (d DType) ItemSize() int {
	switch d.kind {
	case KindFloat32, KindInt32:
		return 4
	case KindFloat64, KindInt64:
		return 8
	case KindBytes:
		return d.width
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d.kind {
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindBytes:
		return "S" + strconv.Itoa(d.width)
	default:
		return "invalid"
	}
}

// ParseDType parses the textual form produced by String. Numpy style
// byte-order prefixes ("<", ">", "|") and short codes ("f4", "i8") are accepted.
func ParseDType(s string) (DType, error) {
	t := strings.TrimLeft(strings.TrimSpace(s), "<>|=")
	switch strings.ToLower(t) {
	case "float32", "f4":
		return Float32, nil
	case "float64", "f8", "float":
		return Float64, nil
	case "int32", "i4":
		return Int32, nil
	case "int64", "i8", "int":
		return Int64, nil
	}
	if len(t) > 1 && (t[0] == 'S' || t[0] == 'a') {
		w, err := strconv.Atoi(t[1:])
		if err == nil && w > 0 {
			return Bytes(w), nil
		}
	}
	return DType{}, fmt.Errorf("unknown dtype %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d DType) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid dtype")
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// CanCastSafely reports whether every value of from is representable in to.
// The rules follow numpy's "safe" casting.
func CanCastSafely(from, to DType) bool {
	if from == to {
		return true
	}
	switch from.kind {
	case KindFloat32:
		return to.kind == KindFloat64 || (to.kind == KindBytes && to.width >= 16)
	case KindFloat64:
		return to.kind == KindBytes && to.width >= 24
	case KindInt32:
		switch to.kind {
		case KindInt64, KindFloat64:
			return true
		case KindBytes:
			return to.width >= 11
		}
	case KindInt64:
		switch to.kind {
		case KindFloat64:
			return true
		case KindBytes:
			return to.width >= 21
		}
	case KindBytes:
		return to.kind == KindBytes && to.width >= from.width
	}
	return false
}
