package pxlower

// Combine recognizes patterns worth replacing with a cheaper or legal
// sequence. It reports false with a nil error when nothing matches; the
// unmatched form is always correct, matching is only an optimization.
func (en *Engine) Combine(x *Expr) (*Expr, bool, error) {
	r, pattern, err := en.combine(x)
	if err != nil || r == nil {
		return nil, false, err
	}
	Logger().Debug("pxlower: combined", "op", x.Op, "type", x.Type, "pattern", pattern)
	return r, true, nil
}

func (en *Engine) combine(x *Expr) (*Expr, string, error) {
	switch x.Op {
	case OpSelect:
		return en.combineSelect(x)
	case OpShuffle:
		return en.combineShuffle(x)
	case OpShl, OpSrl:
		return en.combineShift(x)
	case OpUAddO, OpUAddE:
		if !x.Type.IsLong() || checkShape(x) != nil {
			return nil, "", nil
		}
		r, err := en.lowerAddChain(x)
		return r, en.carryChainName(x.Type), err
	case OpAnd, OpOr, OpXor:
		return en.combineLogic(x)
	}
	return nil, "", nil
}

// combineSelect turns a select on 1-bit fields into bitwise logic, and
// widens a v32i1 mask over v32i8 values to a byte mask on AVX hosts.
func (en *Engine) combineSelect(x *Expr) (*Expr, string, error) {
	if len(x.Args) != 3 {
		return nil, "", nil
	}
	mask, a, b := x.Args[0], x.Args[1], x.Args[2]
	t := x.Type
	if mask.Type == t && t.IsNarrow() && t.Elem == 1 {
		c, err := en.carriers.lookup(t)
		if err != nil {
			return nil, "", err
		}
		r := en.b.ifh1(en.b.bitcast(mask, c), a, b)
		return en.b.bitcast(r, t), "select-i1", nil
	}
	f := en.opts.Features
	if mask.Type == V32I1 && t == V32I8 && (f.AVX || f.AVX2) {
		return Select(NewNode(OpSext, V32I8, mask), a, b), "select-sext-mask", nil
	}
	return nil, "", nil
}

func isPackMask(mask []int, odd bool) bool {
	k := 0
	if odd {
		k = 1
	}
	for i, m := range mask {
		if m >= 0 && m != 2*i+k {
			return false
		}
	}
	return true
}

func (en *Engine) combineShuffle(x *Expr) (*Expr, string, error) {
	if len(x.Args) != 2 {
		return nil, "", nil
	}
	a, b := x.Args[0], x.Args[1]
	t := x.Type
	if a.Type != t || b.Type != t || a.Op == OpUndef || b.Op == OpUndef {
		return nil, "", nil
	}
	switch {
	case t.IsNarrow():
	case t == V16I8 && en.opts.Features.SSE2:
	default:
		return nil, "", nil
	}
	for _, odd := range []bool{false, true} {
		if isPackMask(x.Mask, odd) {
			r, err := en.pack(t, a, b, odd)
			return r, en.packName(t), err
		}
	}
	return nil, "", nil
}

func (en *Engine) combineShift(x *Expr) (*Expr, string, error) {
	if len(x.Args) != 2 || x.Args[0].Type != x.Type {
		return nil, "", nil
	}
	n, ok := shiftImmediate(x.Args[1])
	if !ok {
		return nil, "", nil
	}
	t := x.Type
	switch {
	case t.IsLong():
		return en.wideShift(x.Op, t, x.Args[0], n), "word-shift", nil
	case t.IsNarrow() && (t.Elem == 2 || t.Elem == 4):
		return en.fieldShift(x.Op, t, x.Args[0], n), "field-shift", nil
	}
	return nil, "", nil
}

// fieldShift shifts every field by the same constant using 32-bit lanes,
// then clears the bits that crossed into a neighbouring field.
func (en *Engine) fieldShift(op Opcode, t Type, a *Expr, n int) *Expr {
	if n >= t.Elem {
		return Zero(t)
	}
	bb := en.b
	st := shiftCarrier(t.Bits())
	v := bb.bitcast(a, st)
	ones := fieldMask(t.Elem)
	var s *Expr
	var keep uint64
	if op == OpShl {
		s, keep = bb.shl(n, v), ones<<n&ones
	} else {
		s, keep = bb.srl(n, v), ones>>n
	}
	return bb.bitcast(bb.and(s, ConstValue(st, Splat(t, keep).Val)), t)
}

// combineLogic fuses or(shl(A, n), srl(B, w-n)) on a long integer into a
// double shift, and otherwise moves long logic onto 64-bit word vectors
// when the host has registers that wide.
func (en *Engine) combineLogic(x *Expr) (*Expr, string, error) {
	t := x.Type
	if !t.IsLong() || len(x.Args) != 2 {
		return nil, "", nil
	}
	if x.Op == OpOr {
		l, r := x.Args[0], x.Args[1]
		if l.Op != OpShl {
			l, r = r, l
		}
		if l.Op == OpShl && r.Op == OpSrl && l.Type == t && r.Type == t {
			nl, okl := shiftImmediate(l.Args[1])
			nr, okr := shiftImmediate(r.Args[1])
			if okl && okr && nl > 0 && nl < t.Bits() && nl+nr == t.Bits() {
				return en.doubleShift(t, l.Args[0], r.Args[0], nl), "double-shift", nil
			}
		}
	}
	f := en.opts.Features
	if (t == I128 && f.SSE2) || (t == I256 && f.AVX2) {
		r, err := en.castAndOp(x.Op)(x)
		return r, "word-logic", err
	}
	return nil, "", nil
}

// Rewrite applies Combine over the whole tree until no pattern matches.
// Each node is offered to Combine before its operands are rewritten, so
// patterns spanning several nodes are seen intact, and again afterwards.
func (en *Engine) Rewrite(root *Expr) (*Expr, error) {
	done := map[*Expr]*Expr{}
	fix := func(x *Expr) (*Expr, error) {
		for {
			r, ok, err := en.Combine(x)
			if err != nil {
				return nil, err
			}
			if !ok {
				return x, nil
			}
			x = r
		}
	}
	var walk func(x *Expr) (*Expr, error)
	walk = func(x *Expr) (*Expr, error) {
		if r, ok := done[x]; ok {
			return r, nil
		}
		n, err := fix(x)
		if err != nil {
			return nil, err
		}
		args := make([]*Expr, len(n.Args))
		changed := false
		for i, a := range n.Args {
			r, err := walk(a)
			if err != nil {
				return nil, err
			}
			args[i] = r
			changed = changed || r != a
		}
		if changed {
			if n, err = fix(n.withArgs(args)); err != nil {
				return nil, err
			}
		}
		done[x] = n
		done[n] = n
		return n, nil
	}
	return walk(root)
}
