package pxlower

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is an integer scalar (Lanes == 0) or an integer vector.
type Type struct {
	Lanes int
	Elem  int
}

// Int returns the scalar integer type of the given width.
func Int(bits int) Type { return Type{Elem: bits} }

// Vec returns the vector type <lanes x i<elem>>.
func Vec(lanes, elem int) Type { return Type{Lanes: lanes, Elem: elem} }

var (
	I1   = Int(1)
	I8   = Int(8)
	I16  = Int(16)
	I32  = Int(32)
	I64  = Int(64)
	I128 = Int(128)
	I256 = Int(256)

	V32I1  = Vec(32, 1)
	V64I1  = Vec(64, 1)
	V128I1 = Vec(128, 1)
	V256I1 = Vec(256, 1)
	V16I2  = Vec(16, 2)
	V32I2  = Vec(32, 2)
	V64I2  = Vec(64, 2)
	V128I2 = Vec(128, 2)
	V8I4   = Vec(8, 4)
	V16I4  = Vec(16, 4)
	V32I4  = Vec(32, 4)
	V64I4  = Vec(64, 4)
	V16I8  = Vec(16, 8)
	V32I8  = Vec(32, 8)
	V8I16  = Vec(8, 16)
	V4I32  = Vec(4, 32)
	V2I64  = Vec(2, 64)
	V4I64  = Vec(4, 64)
)

func (t Type) IsVector() bool { return t.Lanes > 0 }

func (t Type) IsValid() bool {
	return t.Elem > 0 && t.Lanes >= 0 && t.Bits() <= MaxBits
}

// Bits is the total width of t.
func (t Type) Bits() int {
	if t.Lanes == 0 {
		return t.Elem
	}
	return t.Lanes * t.Elem
}

// NumLanes is 1 for scalars.
func (t Type) NumLanes() int {
	if t.Lanes == 0 {
		return 1
	}
	return t.Lanes
}

// ElemType returns the scalar type of one lane.
func (t Type) ElemType() Type { return Int(t.Elem) }

// WithLanes keeps the element width and replaces the lane count.
func (t Type) WithLanes(n int) Type { return Type{Lanes: n, Elem: t.Elem} }

// IsNarrow reports whether t is a packed vector of 1, 2 or 4-bit fields
// in a supported carrier width.
func (t Type) IsNarrow() bool {
	if !t.IsVector() || !isCarrierWidth(t.Bits()) {
		return false
	}
	switch t.Elem {
	case 1, 2, 4:
		return true
	}
	return false
}

// IsLong reports whether t is a long integer wider than any native register.
func (t Type) IsLong() bool {
	return !t.IsVector() && (t.Elem == 128 || t.Elem == 256)
}

func (t Type) String() string {
	if t.Lanes == 0 {
		return "i" + strconv.Itoa(t.Elem)
	}
	return fmt.Sprintf("v%di%d", t.Lanes, t.Elem)
}

// LLVM renders t in LLVM IR syntax.
func (t Type) LLVM() string {
	if t.Lanes == 0 {
		return "i" + strconv.Itoa(t.Elem)
	}
	return fmt.Sprintf("<%d x i%d>", t.Lanes, t.Elem)
}

// ParseType accepts "i128", "v64i2" and "<64 x i2>".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	bad := func() (Type, error) {
		return Type{}, fmt.Errorf("%w: cannot parse type %q", ErrUnsupportedType, s)
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		body := strings.TrimSpace(s[1 : len(s)-1])
		lanes, elem, ok := strings.Cut(body, "x")
		if !ok {
			return bad()
		}
		s = "v" + strings.TrimSpace(lanes) + strings.TrimSpace(elem)
	}
	var t Type
	switch {
	case strings.HasPrefix(s, "v"):
		lanes, elem, ok := strings.Cut(s[1:], "i")
		if !ok {
			return bad()
		}
		n, err := strconv.Atoi(lanes)
		if err != nil || n <= 0 {
			return bad()
		}
		w, err := strconv.Atoi(elem)
		if err != nil || w <= 0 {
			return bad()
		}
		t = Vec(n, w)
	case strings.HasPrefix(s, "i"):
		w, err := strconv.Atoi(s[1:])
		if err != nil || w <= 0 {
			return bad()
		}
		t = Int(w)
	default:
		return bad()
	}
	if !t.IsValid() {
		return bad()
	}
	return t, nil
}

func log2(n int) int {
	k := 0
	for n > 1 {
		n >>= 1
		k++
	}
	return k
}
