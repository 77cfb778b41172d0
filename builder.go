package pxlower

// builder assembles native expression trees. Every helper takes its opcode
// and type explicitly; nothing is inferred from a surrounding node.
type builder struct {
	masks maskTable
}

func (b builder) bitcast(x *Expr, t Type) *Expr {
	if x.Type == t {
		return x
	}
	if x.Op == OpBitcast {
		return b.bitcast(x.Args[0], t)
	}
	return NewNode(OpBitcast, t, x)
}

// binop applies op at type t, reinterpreting both operands first.
func (b builder) binop(op Opcode, t Type, x, y *Expr) *Expr {
	return NewNode(op, t, b.bitcast(x, t), b.bitcast(y, t))
}

func (b builder) and(x, y *Expr) *Expr { return b.binop(OpAnd, x.Type, x, y) }
func (b builder) or(x, y *Expr) *Expr  { return b.binop(OpOr, x.Type, x, y) }
func (b builder) xor(x, y *Expr) *Expr { return b.binop(OpXor, x.Type, x, y) }
func (b builder) add(x, y *Expr) *Expr { return b.binop(OpAdd, x.Type, x, y) }
func (b builder) mul(x, y *Expr) *Expr { return b.binop(OpMul, x.Type, x, y) }

func (b builder) not(x *Expr) *Expr {
	if v, ok := x.IsConst(); ok {
		var n Value
		n.Not(&v)
		return ConstValue(x.Type, n)
	}
	return NewNode(OpXor, x.Type, x, Ones(x.Type))
}

// shift by the same immediate in every lane of x's type.
func (b builder) shiftImm(op Opcode, n int, x *Expr) *Expr {
	if n == 0 {
		return x
	}
	return NewNode(op, x.Type, x, b.splat(x.Type, uint64(n)))
}

func (b builder) shl(n int, x *Expr) *Expr { return b.shiftImm(OpShl, n, x) }
func (b builder) srl(n int, x *Expr) *Expr { return b.shiftImm(OpSrl, n, x) }

func (b builder) splat(t Type, v uint64) *Expr {
	if !t.IsVector() {
		return Const(t, v)
	}
	return Splat(t, v)
}

// ifh1 merges bitwise: mask ? hi : lo.
func (b builder) ifh1(mask, hi, lo *Expr) *Expr {
	t := mask.Type
	hi = b.bitcast(hi, t)
	lo = b.bitcast(lo, t)
	return b.or(b.and(mask, hi), b.and(b.not(mask), lo))
}

// himask is the high-half field mask as a carrier-typed constant.
func (b builder) himask(carrier Type, fw int) *Expr {
	return ConstValue(carrier, b.masks.get(carrier.Bits(), fw, maskHigh))
}

func (b builder) lomask(carrier Type, fw int) *Expr {
	return ConstValue(carrier, b.masks.get(carrier.Bits(), fw, maskLow))
}

func (b builder) trunc(x *Expr, t Type) *Expr { return NewNode(OpTrunc, t, x) }
func (b builder) zext(x *Expr, t Type) *Expr  { return NewNode(OpZext, t, x) }

// zextOrTrunc resizes a scalar (or lane-wise a vector) to t.
func (b builder) zextOrTrunc(x *Expr, t Type) *Expr {
	switch {
	case x.Type.Elem < t.Elem:
		return b.zext(x, t)
	case x.Type.Elem > t.Elem:
		return b.trunc(x, t)
	}
	return x
}

func (b builder) extract(vec, idx *Expr) *Expr { return ExtractElt(vec, idx) }

func (b builder) insert(vec, elt, idx *Expr) *Expr { return InsertElt(vec, elt, idx) }

// shuffle folds masks that select one operand unchanged.
func (b builder) shuffle(x, y *Expr, mask ...int) *Expr {
	n := x.Type.NumLanes()
	if len(mask) == n {
		left, right := true, true
		for i, m := range mask {
			left = left && m == i
			right = right && m == n+i
		}
		switch {
		case left:
			return x
		case right:
			return y
		}
	}
	return Shuffle(x, y, mask)
}

func (b builder) setcc(c Cond, x, y *Expr) *Expr { return SetCC(c, x, y) }

func (b builder) pext(x, mask *Expr) *Expr { return NewNode(OpPext, I64, x, mask) }

func (b builder) movmask(x *Expr) *Expr { return NewNode(OpMovMask, I32, x) }

func (b builder) packus(x, y *Expr) *Expr {
	return NewNode(OpPackUS, Vec(x.Type.Lanes*2, x.Type.Elem/2), x, y)
}

func (b builder) byteShift(op Opcode, n int, x *Expr) *Expr {
	v := b.bitcast(x, V16I8)
	return &Expr{Op: op, Type: V16I8, Args: []*Expr{v}, Imm: n}
}

// words splits a 32..256-bit value into 64-bit words, low word first. A
// 32-bit value becomes one zero-extended word.
func (b builder) words(x *Expr, carrier Type) []*Expr {
	switch carrier.Bits() {
	case 32:
		return []*Expr{b.zext(b.bitcast(x, I32), I64)}
	case 64:
		return []*Expr{b.bitcast(x, I64)}
	}
	wt := wordType(carrier.Bits())
	v := b.bitcast(x, wt)
	out := make([]*Expr, wt.Lanes)
	for i := range out {
		out[i] = b.extract(v, Const(I32, uint64(i)))
	}
	return out
}
