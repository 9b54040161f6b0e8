package ir

import (
	"fmt"
	"math"
)

// IRValue is a sealed interface representing constrained literal types.
// Only IRNull, IRString, IRInt and IRBool implement this.
// NO IRFloat - floats are forbidden in IR since they break hash determinism.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a SQL NULL literal.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// IRString represents a string literal.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer literal.
// Always int64, never float64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean literal.
type IRBool bool

func (IRBool) irValue() {}

// NewIRString creates an IRString value.
func NewIRString(s string) IRString {
	return IRString(s)
}

// NewIRInt creates an IRInt value.
func NewIRInt(n int64) IRInt {
	return IRInt(n)
}

// NewIRBool creates an IRBool value.
func NewIRBool(b bool) IRBool {
	return IRBool(b)
}

// ToIRValue converts a decoded Go value (YAML, CUE, JSON) to an IRValue.
// Floats with an integral value are accepted as IRInt; any other float is
// rejected.
func ToIRValue(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return IRInt(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("floats are forbidden in IR: %v", val)
		}
		return IRInt(int64(val)), nil
	default:
		return nil, fmt.Errorf("unsupported literal type: %T", v)
	}
}

// typeOfValue returns the structural type of a literal.
func typeOfValue(v IRValue) Type {
	switch v.(type) {
	case IRNull:
		return Null
	case IRBool:
		return BooleanValue
	default:
		return Value
	}
}
