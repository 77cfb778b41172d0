package pxlower

func (en *Engine) registerPromotions() {
	for _, t := range narrowTypes(4) {
		for _, op := range []Opcode{OpSub, OpMul, OpShl, OpSrl, OpSra, OpSetCC} {
			en.register(StrategyPromote, op, t, "promote-"+op.String(), en.lowerPromote)
		}
	}
	for _, t := range narrowTypes(8) {
		en.register(StrategyPromote, OpMul, t, "promote-mul", en.lowerPromote)
	}
}

// lowerPromote runs x at twice its field width in place: one native op for
// the odd (high) fields and one for the even (low) fields, merged with the
// double-width high mask. The operand preparation differs per op so that
// neither half reads bits belonging to the other.
func (en *Engine) lowerPromote(x *Expr) (*Expr, error) {
	if x.Op == OpSetCC && !x.Cond.valid() {
		return nil, unsupportedOpf(x.Op, x.Type, "predicate %s", x.Cond)
	}
	c, a, b, err := en.carrierArgs(x)
	if err != nil {
		return nil, err
	}
	fw := x.Type.Elem
	dt := doubleType(x.Type)
	bb := en.b
	hm := bb.himask(c, 2*fw)
	lm := bb.lomask(c, 2*fw)

	at := func(v *Expr) *Expr { return bb.bitcast(v, dt) }
	op := func(p, q *Expr) *Expr {
		if x.Op == OpSetCC {
			return SetCC(x.Cond, at(p), at(q))
		}
		return bb.binop(x.Op, dt, p, q)
	}

	var hi, lo *Expr
	switch x.Op {
	case OpMul:
		hi = bb.shl(fw, op(bb.srl(fw, at(a)), bb.srl(fw, at(b))))
	case OpShl:
		hi = op(bb.and(a, hm), bb.srl(fw, at(b)))
	case OpSrl, OpSra:
		// the high field already sits at the top of the double lane
		hi = op(a, bb.srl(fw, at(b)))
	default:
		hi = op(bb.and(a, hm), bb.and(b, hm))
	}

	switch x.Op {
	case OpSetCC:
		// move the low fields up so the native compare sees their sign bit
		lo = op(bb.shl(fw, at(a)), bb.shl(fw, at(b)))
	case OpShl:
		lo = op(a, bb.and(b, lm))
	case OpSrl:
		lo = op(bb.and(a, lm), bb.and(b, lm))
	case OpSra:
		lo = bb.srl(fw, op(bb.shl(fw, at(a)), bb.and(b, lm)))
	default:
		lo = op(a, b)
	}

	return bb.bitcast(bb.ifh1(hm, hi, lo), x.Type), nil
}
