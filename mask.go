package pxlower

import "fmt"

type maskKind int

const (
	maskHigh maskKind = iota
	maskLow
	maskEven
	maskOdd
)

type maskKey struct {
	carrier int
	field   int
	kind    maskKind
}

// maskTable holds every field mask the strategies use, built once.
type maskTable map[maskKey]Value

func newMaskTable() maskTable {
	mt := maskTable{}
	for _, cw := range carrierWidths {
		for fw := 2; fw <= 64 && fw <= cw; fw *= 2 {
			hi := highMask(cw, fw)
			mt[maskKey{cw, fw, maskHigh}] = hi
			var lo Value
			lo.Not(&hi)
			mt[maskKey{cw, fw, maskLow}] = truncBits(lo, cw)
		}
		for fw := 1; fw <= 32 && 2*fw <= cw; fw *= 2 {
			mt[maskKey{cw, fw, maskEven}] = mt[maskKey{cw, 2 * fw, maskLow}]
			mt[maskKey{cw, fw, maskOdd}] = mt[maskKey{cw, 2 * fw, maskHigh}]
		}
	}
	return mt
}

func (mt maskTable) get(cw, fw int, kind maskKind) Value {
	v, ok := mt[maskKey{cw, fw, kind}]
	if !ok {
		panic(fmt.Sprintf("pxlower: no mask for carrier %d field %d kind %d", cw, fw, kind))
	}
	return v
}

// highMask repeats fw/2 one bits above fw/2 zero bits across cw bits, so
// it selects the upper half of every fw-bit field.
func highMask(cw, fw int) Value {
	half := fw / 2
	var v Value
	for off := 0; off < cw; off += fw {
		for b := off + half; b < off+fw; b++ {
			v[b/64] |= 1 << (b % 64)
		}
	}
	return v
}

// HighMask returns the upper-half selector for fieldWidth-bit fields.
func HighMask(carrierWidth, fieldWidth int) (Value, error) {
	if !isCarrierWidth(carrierWidth) || fieldWidth < 2 || fieldWidth > carrierWidth || fieldWidth&(fieldWidth-1) != 0 {
		return Value{}, fmt.Errorf("%w: no high mask for carrier %d field %d", ErrUnsupportedType, carrierWidth, fieldWidth)
	}
	return highMask(carrierWidth, fieldWidth), nil
}

// InterleaveMask selects the even (or odd) fieldWidth-bit fields.
func InterleaveMask(carrierWidth, fieldWidth int, odd bool) (Value, error) {
	hi, err := HighMask(carrierWidth, 2*fieldWidth)
	if err != nil {
		return Value{}, err
	}
	if odd {
		return hi, nil
	}
	var lo Value
	lo.Not(&hi)
	return truncBits(lo, carrierWidth), nil
}
