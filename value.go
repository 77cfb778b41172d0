package pxlower

import "github.com/holiman/uint256"

// MaxBits is the widest register the engine models.
const MaxBits = 256

// Value holds the bits of one register, lane i of a w-bit vector at bits
// [i*w, (i+1)*w).
type Value = uint256.Int

// Env binds Arg names to values.
type Env map[string]Value

// lane reads lane i of width w (w <= 64, w divides 64).
func lane(v *Value, w, i int) uint64 {
	off := i * w
	word := v[off/64] >> (off % 64)
	if w == 64 {
		return word
	}
	return word & (1<<w - 1)
}

func setLane(v *Value, w, i int, x uint64) {
	off := i * w
	sh := off % 64
	if w == 64 {
		v[off/64] = x
		return
	}
	m := uint64(1<<w-1) << sh
	v[off/64] = v[off/64]&^m | (x<<sh)&m
}

// truncBits clears everything above the low bits.
func truncBits(v Value, bits int) Value {
	if bits >= MaxBits {
		return v
	}
	for w := 0; w < 4; w++ {
		lo := w * 64
		switch {
		case bits <= lo:
			v[w] = 0
		case bits < lo+64:
			v[w] &= 1<<(bits-lo) - 1
		}
	}
	return v
}

// signExtend replicates bit bits-1 into every higher bit.
func signExtend(v Value, bits int) Value {
	if bits >= MaxBits {
		return v
	}
	v = truncBits(v, bits)
	if v[(bits-1)/64]>>((bits-1)%64)&1 == 0 {
		return v
	}
	var hi Value
	hi.SetAllOne()
	hi.Lsh(&hi, uint(bits))
	v.Or(&v, &hi)
	return v
}

func laneMask(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return 1<<w - 1
}

func sext64(x uint64, w int) int64 {
	if w >= 64 {
		return int64(x)
	}
	s := 64 - w
	return int64(x<<s) >> s
}

// valueOfLanes packs lanes of width w into a Value.
func valueOfLanes(w int, lanes []uint64) Value {
	var v Value
	for i, x := range lanes {
		setLane(&v, w, i, x)
	}
	return v
}

// lanesOf unpacks the lanes of t from v.
func lanesOf(t Type, v Value) []uint64 {
	out := make([]uint64, t.NumLanes())
	for i := range out {
		out[i] = lane(&v, t.Elem, i)
	}
	return out
}

// LanesOf unpacks v as lanes of t; t.Elem must be at most 64.
func LanesOf(t Type, v Value) []uint64 { return lanesOf(t, v) }

// ValueOfLanes packs lanes of t; values are truncated to the lane width.
func ValueOfLanes(t Type, lanes []uint64) Value {
	m := laneMask(t.Elem)
	var v Value
	for i, x := range lanes {
		setLane(&v, t.Elem, i, x&m)
	}
	return v
}
