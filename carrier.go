package pxlower

import "fmt"

// carrierWidths are the register widths a logical type may occupy.
var carrierWidths = []int{32, 64, 128, 256}

func isCarrierWidth(bits int) bool {
	for _, w := range carrierWidths {
		if w == bits {
			return true
		}
	}
	return false
}

// carrierTable maps a total width to the native type holding it.
type carrierTable map[int]Type

func newCarrierTable() carrierTable {
	return carrierTable{
		32:  I32,
		64:  I64,
		128: V2I64,
		256: V4I64,
	}
}

func (ct carrierTable) lookup(t Type) (Type, error) {
	c, ok := ct[t.Bits()]
	if !ok {
		return Type{}, fmt.Errorf("%w: %s: no carrier for %d-bit register", ErrUnsupportedType, t, t.Bits())
	}
	return c, nil
}

var defaultCarriers = newCarrierTable()

// CarrierFor returns the native type used to hold the bits of t.
func CarrierFor(t Type) (Type, error) { return defaultCarriers.lookup(t) }

// wordType is the vector of 64-bit words covering a long integer or a
// 128/256-bit carrier.
func wordType(bits int) Type { return Vec(bits/64, 64) }

// doubleType doubles the field width in place: v32i4 -> v16i8.
func doubleType(t Type) Type { return Vec(t.Lanes/2, t.Elem*2) }

// byteType is the byte vector of the same width.
func byteType(bits int) Type { return Vec(bits/8, 8) }

// shiftCarrier is the type used for field-masked immediate shifts.
func shiftCarrier(bits int) Type {
	switch bits {
	case 32:
		return I32
	case 64:
		return I64
	}
	return Vec(bits/32, 32)
}
