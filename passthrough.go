package pxlower

// Field-independent operations: reinterpret as the carrier, apply one
// native op, reinterpret back. No carries means no masking.

func (en *Engine) registerPassThrough() {
	for _, fw := range []int{1, 2, 4} {
		for _, t := range narrowTypes(fw) {
			for _, op := range []Opcode{OpAnd, OpOr, OpXor} {
				en.register(StrategyPassThrough, op, t, op.String(), en.castAndOp(op))
			}
		}
	}
	// Modulo 2, add and sub are xor and mul is and.
	for _, t := range narrowTypes(1) {
		en.register(StrategyPassThrough, OpAdd, t, "xor", en.castAndOp(OpXor))
		en.register(StrategyPassThrough, OpSub, t, "xor", en.castAndOp(OpXor))
		en.register(StrategyPassThrough, OpMul, t, "and", en.castAndOp(OpAnd))
	}
	for _, t := range longTypes {
		for _, op := range []Opcode{OpAnd, OpOr, OpXor} {
			en.register(StrategyPassThrough, op, t, op.String(), en.castAndOp(op))
		}
	}
}

// castAndOp lowers x to op applied to its operands at the carrier type.
func (en *Engine) castAndOp(op Opcode) lowerFunc {
	return func(x *Expr) (*Expr, error) {
		c, err := en.carriers.lookup(x.Type)
		if err != nil {
			return nil, err
		}
		r := en.b.binop(op, c, x.Args[0], x.Args[1])
		return en.b.bitcast(r, x.Type), nil
	}
}

// carrierArgs reinterprets the two operands of x as its carrier.
func (en *Engine) carrierArgs(x *Expr) (c Type, a, b *Expr, err error) {
	c, err = en.carriers.lookup(x.Type)
	if err != nil {
		return Type{}, nil, nil, err
	}
	return c, en.b.bitcast(x.Args[0], c), en.b.bitcast(x.Args[1], c), nil
}
