package pxlower

// Long integers are vectors of 64-bit words, word 0 least significant.

func (en *Engine) carryChainName(t Type) string {
	if en.hasSignMask(t.Bits() / 64) {
		return "carry-chain/movmask"
	}
	return "carry-chain/setcc"
}

func (en *Engine) hasSignMask(words int) bool {
	f := en.opts.Features
	return (words == 2 && f.SSE2) || (words == 4 && f.AVX)
}

// lowerAddChain lowers UADDO and UADDE to merge_values(sum, carry out).
func (en *Engine) lowerAddChain(x *Expr) (*Expr, error) {
	var cin *Expr
	if x.Op == OpUAddE {
		cin = x.Args[2]
	}
	sum, carry := en.longAdd(x.Type, x.Args[0], x.Args[1], cin)
	return MergeValues(sum, carry), nil
}

func (en *Engine) lowerLongAdd(x *Expr) (*Expr, error) {
	sum, _ := en.longAdd(x.Type, x.Args[0], x.Args[1], nil)
	return sum, nil
}

// longAdd adds word-wise, then repairs the words that should have received
// a carry. x, y and r hold one sign bit per word of the operands and of the
// raw sum; bubble marks all-ones sum words, which pass an incoming carry
// on. MatchStar resolves every carry run at once.
func (en *Engine) longAdd(t Type, a, b, cin *Expr) (sum, carryOut *Expr) {
	bb := en.b
	f := t.Bits() / 64
	vt := wordType(t.Bits())
	X := bb.bitcast(a, vt)
	Y := bb.bitcast(b, vt)
	R := bb.binop(OpAdd, vt, X, Y)
	ones := Ones(vt)

	var x, y, r, bubble *Expr
	if en.hasSignMask(f) {
		x = bb.movmask(X)
		y = bb.movmask(Y)
		r = bb.movmask(R)
		bubble = bb.movmask(bb.setcc(CondEQ, R, ones))
	} else {
		bits := func(c Cond, v, k *Expr) *Expr {
			m := bb.trunc(bb.setcc(c, v, k), Vec(f, 1))
			return bb.zext(bb.bitcast(m, Int(f)), I32)
		}
		zero := Zero(vt)
		x = bits(CondSLT, X, zero)
		y = bits(CondSLT, Y, zero)
		r = bits(CondSLT, R, zero)
		bubble = bits(CondEQ, R, ones)
	}

	carry := bb.or(bb.and(x, y), bb.and(bb.or(x, y), bb.not(r)))
	m := bb.shl(1, carry)
	if cin != nil {
		m = bb.or(bb.and(bb.zextOrTrunc(cin, I32), Const(I32, 1)), m)
	}
	inc := matchStar(bb, m, bubble)
	carryOut = bb.trunc(bb.srl(f, inc), I1)

	var spread *Expr
	switch f {
	case 2:
		s := bb.and(bb.mul(inc, Const(I32, 0x8001)), Const(I32, 0x10001))
		spread = bb.zext(bb.bitcast(s, Vec(2, 16)), vt)
	case 4:
		s := bb.and(bb.mul(bb.zext(inc, I64), Const(I64, 0x0000200040008001)), Const(I64, 0x0001000100010001))
		spread = bb.zext(bb.bitcast(s, Vec(4, 16)), vt)
	default:
		spread = bb.zext(bb.bitcast(bb.trunc(inc, Int(f)), Vec(f, 1)), vt)
	}
	sum = bb.bitcast(bb.binop(OpAdd, vt, R, spread), t)
	return sum, carryOut
}

// matchStar marks m extended through the runs of c it starts.
func matchStar(b builder, m, c *Expr) *Expr {
	return b.or(b.xor(b.add(b.and(m, c), c), c), m)
}

// shiftImmediate reads a shift amount that is the same constant in every
// lane. Undefined lanes of a build vector are ignored.
func shiftImmediate(e *Expr) (int, bool) {
	switch e.Op {
	case OpConst:
		if e.Type.IsVector() && e.Type.Elem <= 64 {
			v, ok := splatLane(e.Type, e.Val)
			if !ok || v > MaxBits {
				return 0, false
			}
			return int(v), true
		}
		if !e.Val.IsUint64() || e.Val.Uint64() > MaxBits {
			return 0, false
		}
		return int(e.Val.Uint64()), true
	case OpBuildVector:
		n, seen := 0, false
		for _, a := range e.Args {
			if a.Op == OpUndef {
				continue
			}
			v, ok := shiftImmediate(a)
			if !ok || (seen && v != n) {
				return 0, false
			}
			n, seen = v, true
		}
		return n, seen
	}
	return 0, false
}

func (en *Engine) lowerWideShift(x *Expr) (*Expr, error) {
	n, ok := shiftImmediate(x.Args[1])
	if !ok {
		return nil, malformedf(x.Op, x.Type, "shift amount must be a constant")
	}
	return en.wideShift(x.Op, x.Type, x.Args[0], n), nil
}

// wideShift shifts a long integer by a constant: whole words move through
// a shuffle with a zero vector, the remainder is a same-word shift OR'd
// with the bits crossing in from the neighbouring word.
func (en *Engine) wideShift(op Opcode, t Type, a *Expr, n int) *Expr {
	bb := en.b
	w := t.Bits()
	switch {
	case n == 0:
		return a
	case n >= w:
		return Zero(t)
	}
	if w == 128 && n%8 == 0 && en.opts.Features.SSE2 {
		bop := OpByteShl
		if op == OpSrl {
			bop = OpByteSrl
		}
		return bb.bitcast(bb.byteShift(bop, n/8, a), t)
	}

	f := w / 64
	vt := wordType(w)
	v := bb.bitcast(a, vt)
	z := Zero(vt)
	q, r := n/64, n%64
	// pick(d): result word i takes source word i+d, or a zero word.
	pick := func(d int) []int {
		idx := make([]int, f)
		for i := range idx {
			if j := i + d; j >= 0 && j < f {
				idx[i] = j
			} else {
				idx[i] = f
			}
		}
		return idx
	}
	near, far := pick(q), pick(q+1)
	if op == OpShl {
		near, far = pick(-q), pick(-q-1)
	}
	nv := bb.shuffle(v, z, near...)
	if r == 0 {
		return bb.bitcast(nv, t)
	}
	fv := bb.shuffle(v, z, far...)
	var res *Expr
	if op == OpShl {
		res = bb.or(bb.shl(r, nv), bb.srl(64-r, fv))
	} else {
		res = bb.or(bb.srl(r, nv), bb.shl(64-r, fv))
	}
	return bb.bitcast(res, t)
}

// doubleShift computes (a << n) | (b >> (w-n)): the top w bits of the 2w
// bit value a:b shifted left by n. Words of b come first in the shuffle.
func (en *Engine) doubleShift(t Type, a, b *Expr, n int) *Expr {
	bb := en.b
	w := t.Bits()
	f := w / 64
	vt := wordType(w)
	A := bb.bitcast(a, vt)
	B := bb.bitcast(b, vt)
	q, r := n/64, n%64
	near := make([]int, f)
	far := make([]int, f)
	for i := range near {
		near[i] = f - q + i
		far[i] = f - q - 1 + i
	}
	nv := bb.shuffle(B, A, near...)
	if r == 0 {
		return bb.bitcast(nv, t)
	}
	fv := bb.shuffle(B, A, far...)
	return bb.bitcast(bb.or(bb.shl(r, nv), bb.srl(64-r, fv)), t)
}
