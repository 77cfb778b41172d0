package pxlower

// Closed forms for 2-bit fields. Operands are carrier-typed; every shift is
// by one bit and the final ifh1 with the 2-bit high mask keeps only the bit
// position each half of the formula is valid for, so carries leaking out
// of a field are discarded.

func (en *Engine) registerFormulas() {
	for _, t := range narrowTypes(2) {
		en.register(StrategyFormula, OpAdd, t, "i2-add", en.formula2(i2Add))
		en.register(StrategyFormula, OpSub, t, "i2-sub", en.formula2(i2Sub))
		en.register(StrategyFormula, OpMul, t, "i2-mul", en.formula2(i2Mul))
		en.register(StrategyFormula, OpShl, t, "i2-shl", en.formula2(i2Shl))
		en.register(StrategyFormula, OpSrl, t, "i2-srl", en.formula2(i2Srl))
		en.register(StrategyFormula, OpSra, t, "i2-sra", en.formula2(i2Sra))
		en.register(StrategyFormula, OpSetCC, t, "i2-setcc", en.lowerSetCC2)
	}
	for _, t := range narrowTypes(1) {
		en.register(StrategyFormula, OpSetCC, t, "i1-setcc", en.lowerSetCC1)
		en.register(StrategyFormula, OpShl, t, "and-not", en.lowerShift1)
		en.register(StrategyFormula, OpSrl, t, "and-not", en.lowerShift1)
		en.register(StrategyFormula, OpSra, t, "identity", en.lowerShift1)
	}
	for _, t := range narrowTypes(4) {
		en.register(StrategyFormula, OpAdd, t, "i4-add", en.lowerAdd4)
	}
}

type formulaFunc func(b builder, hm, x, y *Expr) *Expr

func (en *Engine) formula2(f formulaFunc) lowerFunc {
	return func(x *Expr) (*Expr, error) {
		c, a, b, err := en.carrierArgs(x)
		if err != nil {
			return nil, err
		}
		return en.b.bitcast(f(en.b, en.b.himask(c, 2), a, b), x.Type), nil
	}
}

func i2Add(b builder, hm, x, y *Expr) *Expr {
	t := b.xor(x, y)
	return b.ifh1(hm, b.xor(t, b.shl(1, b.and(x, y))), t)
}

func i2Sub(b builder, hm, x, y *Expr) *Expr {
	t := b.xor(x, y)
	return b.ifh1(hm, b.xor(t, b.shl(1, b.and(b.not(x), y))), t)
}

// i2Mul: the high bit is a1&b0 xor a0&b1, written without xor.
func i2Mul(b builder, hm, x, y *Expr) *Expr {
	t1 := b.shl(1, x)
	t2 := b.shl(1, y)
	hi := b.or(
		b.and(t1, b.and(y, b.or(b.not(x), b.not(t2)))),
		b.and(x, b.and(t2, b.or(b.not(t1), b.not(y)))))
	return b.ifh1(hm, hi, b.and(x, y))
}

// Shift amounts 0..3; z is set where the amount bit is clear.

func i2Shl(b builder, hm, x, y *Expr) *Expr {
	z := b.not(y)
	z1 := b.shl(1, z)
	hi := b.and(z, b.or(b.and(z1, x), b.and(b.not(z1), b.shl(1, x))))
	lo := b.and(z, b.and(b.srl(1, z), x))
	return b.ifh1(hm, hi, lo)
}

func i2Srl(b builder, hm, x, y *Expr) *Expr {
	z := b.not(y)
	hi := b.and(z, b.and(b.shl(1, z), x))
	lo := b.and(b.srl(1, z), b.or(b.and(z, x), b.and(b.not(z), b.srl(1, x))))
	return b.ifh1(hm, hi, lo)
}

func i2Sra(b builder, hm, x, y *Expr) *Expr {
	z := b.not(y)
	keep := b.and(z, b.srl(1, z))
	lo := b.or(b.and(keep, x), b.and(b.not(keep), b.srl(1, x)))
	return b.ifh1(hm, x, lo)
}

// Compare formulas leave the answer in the high bit of each field.

func i2Eq(b builder, x, y *Expr) *Expr {
	t := b.xor(x, y)
	return b.and(b.not(b.shl(1, t)), b.not(t))
}

func i2Slt(b builder, x, y *Expr) *Expr {
	ny := b.not(y)
	return b.or(b.and(x, ny), b.and(b.shl(1, b.and(b.not(x), y)), b.or(x, ny)))
}

func i2Sgt(b builder, x, y *Expr) *Expr {
	nx := b.not(x)
	return b.or(b.and(nx, y), b.and(b.shl(1, b.and(x, b.not(y))), b.or(nx, y)))
}

func i2Ult(b builder, x, y *Expr) *Expr {
	nx := b.not(x)
	return b.or(b.and(nx, y), b.and(b.shl(1, b.and(nx, y)), b.or(nx, y)))
}

func i2Ugt(b builder, x, y *Expr) *Expr {
	ny := b.not(y)
	return b.or(b.and(x, ny), b.and(b.shl(1, b.and(x, ny)), b.or(x, ny)))
}

type i2Compare struct {
	f      func(b builder, x, y *Expr) *Expr
	negate bool
}

var i2Compares = map[Cond]i2Compare{
	CondEQ:  {i2Eq, false},
	CondNE:  {i2Eq, true},
	CondSLT: {i2Slt, false},
	CondSGE: {i2Slt, true},
	CondSGT: {i2Sgt, false},
	CondSLE: {i2Sgt, true},
	CondULT: {i2Ult, false},
	CondUGE: {i2Ult, true},
	CondUGT: {i2Ugt, false},
	CondULE: {i2Ugt, true},
}

func (en *Engine) lowerSetCC2(x *Expr) (*Expr, error) {
	cmp, ok := i2Compares[x.Cond]
	if !ok {
		return nil, unsupportedOpf(x.Op, x.Type, "predicate %s", x.Cond)
	}
	c, a, b, err := en.carrierArgs(x)
	if err != nil {
		return nil, err
	}
	ans := cmp.f(en.b, a, b)
	r := en.b.ifh1(en.b.himask(c, 2), ans, en.b.srl(1, ans))
	if cmp.negate {
		r = en.b.not(r)
	}
	return en.b.bitcast(r, x.Type), nil
}

// lowerSetCC1 uses the 1-bit identities; as a signed field a set bit is -1.
func (en *Engine) lowerSetCC1(x *Expr) (*Expr, error) {
	_, a, b, err := en.carrierArgs(x)
	if err != nil {
		return nil, err
	}
	bb := en.b
	var r *Expr
	switch x.Cond {
	case CondEQ:
		r = bb.not(bb.xor(a, b))
	case CondNE:
		r = bb.xor(a, b)
	case CondSLT, CondUGT:
		r = bb.and(a, bb.not(b))
	case CondSGT, CondULT:
		r = bb.and(bb.not(a), b)
	case CondSLE, CondUGE:
		r = bb.not(bb.and(bb.not(a), b))
	case CondSGE, CondULE:
		r = bb.not(bb.and(a, bb.not(b)))
	default:
		return nil, unsupportedOpf(x.Op, x.Type, "predicate %s", x.Cond)
	}
	return bb.bitcast(r, x.Type), nil
}

// lowerShift1: any set amount bit shifts the field out, except SRA which
// refills it with itself.
func (en *Engine) lowerShift1(x *Expr) (*Expr, error) {
	if x.Op == OpSra {
		return x.Args[0], nil
	}
	_, a, b, err := en.carrierArgs(x)
	if err != nil {
		return nil, err
	}
	return en.b.bitcast(en.b.and(a, en.b.not(b)), x.Type), nil
}

// lowerAdd4 clears the top bit of every nibble so a single byte add cannot
// carry across a nibble, then restores the top bits with xor.
func (en *Engine) lowerAdd4(x *Expr) (*Expr, error) {
	c, a, b, err := en.carrierArgs(x)
	if err != nil {
		return nil, err
	}
	bb := en.b
	top := ConstValue(c, Splat(x.Type, 0x8).Val)
	ah := bb.and(top, a)
	bh := bb.and(top, b)
	rest := bb.not(top)
	bt := byteType(c.Bits())
	r := bb.binop(OpAdd, bt, bb.and(a, rest), bb.and(b, rest))
	r = bb.binop(OpXor, bt, r, bb.xor(ah, bh))
	return bb.bitcast(r, x.Type), nil
}
