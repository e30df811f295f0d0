package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the semantic type of a stored value or table column
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindBool  Kind = "bool"
	KindText  Kind = "text"
)

// kindAliases maps accepted type tags to their canonical kind
var kindAliases = map[string]Kind{
	"int":     KindInt,
	"integer": KindInt,
	"int64":   KindInt,
	"float":   KindFloat,
	"float64": KindFloat,
	"double":  KindFloat,
	"real":    KindFloat,
	"bool":    KindBool,
	"boolean": KindBool,
	"text":    KindText,
	"str":     KindText,
	"string":  KindText,
}

// ParseKind resolves a caller-supplied type tag to a Kind
func ParseKind(tag string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return "", fmt.Errorf("%w: unknown type %q", ErrSchemaMismatch, tag)
	}
	return k, nil
}

// Valid returns true if k is one of the known kinds
func (k Kind) Valid() bool {
	switch k {
	case KindInt, KindFloat, KindBool, KindText:
		return true
	}
	return false
}

// Value is a closed variant over int64, float64, bool and string.
// The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
}

// Null returns the null value
func Null() Value { return Value{} }

// Int returns an integer value
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point value
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Bool returns a boolean value
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Text returns a string value
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Kind returns the value's kind, or "" for null
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value
func (v Value) IsNull() bool { return v.kind == "" }

// Int returns the integer payload
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the float payload
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Bool returns the boolean payload
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Text returns the string payload
func (v Value) Text() (string, bool) { return v.s, v.kind == KindText }

// Any returns the payload as a plain Go value (nil for null)
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindText:
		return v.s
	}
	return nil
}

// Numeric returns the numeric view used by the value catalog's DOUBLE column.
// Text and null have no numeric view.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// String returns the exact textual encoding of the payload, "" for null
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindText:
		return v.s
	}
	return ""
}

// ParseValue decodes the textual encoding produced by String for the given kind
func ParseValue(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse int %q: %w", raw, err)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse float %q: %w", raw, err)
		}
		return Float(f), nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", raw, err)
		}
		return Bool(b), nil
	case KindText:
		return Text(raw), nil
	}
	return Value{}, fmt.Errorf("%w: unknown kind %q", ErrSchemaMismatch, kind)
}

// storable reports whether the value survives a round trip through storage
func (v Value) storable() error {
	if v.kind == KindFloat && math.IsNaN(v.f) {
		return fmt.Errorf("%w: NaN is not storable, use a null cell", ErrSchemaMismatch)
	}
	return nil
}
