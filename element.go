package pxlower

// Single field access goes through 16-bit lanes, the narrowest lane every
// carrier can extract and insert by a variable index. 1-bit fields in a
// scalar carrier are addressed directly by bit position.

func fieldMask(fw int) uint64 { return 1<<fw - 1 }

// i16Lane splits a field index into the 16-bit lane holding it and the
// bit offset of the field inside that lane.
func (en *Engine) i16Lane(t Type, idx *Expr) (lanes Type, word, shift *Expr) {
	bb := en.b
	per := 16 / t.Elem
	i := bb.zextOrTrunc(idx, I16)
	word = bb.srl(log2(per), i)
	inside := bb.and(i, Const(I16, uint64(per-1)))
	return Vec(t.Bits()/16, 16), word, bb.shl(log2(t.Elem), inside)
}

func (en *Engine) lowerExtract(x *Expr) (*Expr, error) {
	vec, idx := x.Args[0], x.Args[1]
	vt := vec.Type
	c, err := en.carriers.lookup(vt)
	if err != nil {
		return nil, err
	}
	bb := en.b
	if vt.Elem == 1 && !c.IsVector() {
		s := NewNode(OpSrl, c, bb.bitcast(vec, c), bb.zextOrTrunc(idx, c))
		return bb.trunc(bb.and(s, Const(c, 1)), I8), nil
	}
	wt, word, shift := en.i16Lane(vt, idx)
	lane := bb.extract(bb.bitcast(vec, wt), word)
	r := bb.and(NewNode(OpSrl, I16, lane, shift), Const(I16, fieldMask(vt.Elem)))
	return bb.trunc(r, I8), nil
}

func (en *Engine) lowerInsert(x *Expr) (*Expr, error) {
	vec, elt, idx := x.Args[0], x.Args[1], x.Args[2]
	t := x.Type
	c, err := en.carriers.lookup(t)
	if err != nil {
		return nil, err
	}
	bb := en.b
	fw := t.Elem
	if fw == 1 && !c.IsVector() {
		v := bb.bitcast(vec, c)
		pos := bb.zextOrTrunc(idx, c)
		bit := NewNode(OpShl, c, Const(c, 1), pos)
		cleared := bb.and(v, bb.not(bit))
		if k, ok := elt.IsConst(); ok {
			if k.Uint64()&1 == 0 {
				return bb.bitcast(cleared, t), nil
			}
			return bb.bitcast(bb.or(v, bit), t), nil
		}
		b0 := bb.zextOrTrunc(bb.and(bb.zextOrTrunc(elt, I8), Const(I8, 1)), c)
		return bb.bitcast(bb.or(cleared, NewNode(OpShl, c, b0, pos)), t), nil
	}

	wt, word, shift := en.i16Lane(t, idx)
	v := bb.bitcast(vec, wt)
	lane := bb.extract(v, word)
	val := bb.zext(bb.and(bb.zextOrTrunc(elt, I8), Const(I8, fieldMask(fw))), I16)
	field := NewNode(OpShl, I16, Const(I16, fieldMask(fw)), shift)
	lane = bb.or(bb.and(lane, bb.not(field)), NewNode(OpShl, I16, val, shift))

	it := I32
	if en.opts.Features.Is64Bit {
		it = I64
	}
	return bb.bitcast(bb.insert(v, lane, bb.zext(word, it)), t), nil
}

// buildConstant reports whether every defined operand of x is the constant
// want (compared at the field width). Undefined operands match anything.
func buildConstant(x *Expr, want uint64) bool {
	m := fieldMask(x.Type.Elem)
	for _, a := range x.Args {
		if a.Op == OpUndef {
			continue
		}
		v, ok := a.IsConst()
		if !ok || v.Uint64()&m != want&m {
			return false
		}
	}
	return true
}

func (en *Engine) lowerBuild(x *Expr) (*Expr, error) {
	t := x.Type
	c, err := en.carriers.lookup(t)
	if err != nil {
		return nil, err
	}
	bb := en.b
	fw := t.Elem
	switch {
	case buildConstant(x, 0):
		return bb.bitcast(Zero(c), t), nil
	case buildConstant(x, fieldMask(fw)):
		return bb.bitcast(Ones(c), t), nil
	}

	if fw == 1 {
		acc := bb.bitcast(Zero(c), t)
		for i, e := range x.Args {
			if e.Op == OpUndef {
				continue
			}
			if acc, err = en.lowerInsert(InsertElt(acc, e, Const(I32, uint64(i)))); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}

	// Byte j of group g holds field g + j*groups, so group g lands at bit
	// g*fw of every byte.
	groups := 8 / fw
	bt := byteType(c.Bits())
	var acc *Expr
	for g := 0; g < groups; g++ {
		elts := make([]*Expr, bt.Lanes)
		for j := range elts {
			s := x.Args[g+j*groups]
			if s.Op == OpUndef {
				elts[j] = Undef(I8)
				continue
			}
			elts[j] = bb.zextOrTrunc(s, I8)
		}
		v := bb.and(BuildVector(bt, elts...), Splat(bt, fieldMask(fw)))
		v = bb.shl(g*fw, v)
		if acc == nil {
			acc = v
		} else {
			acc = bb.or(acc, v)
		}
	}
	return bb.bitcast(acc, t), nil
}

// lowerScalarToVector places the masked scalar in field 0 and zeroes every
// other field.
func (en *Engine) lowerScalarToVector(x *Expr) (*Expr, error) {
	t := x.Type
	c, err := en.carriers.lookup(t)
	if err != nil {
		return nil, err
	}
	bb := en.b
	s := bb.and(bb.zextOrTrunc(x.Args[0], I8), Const(I8, fieldMask(t.Elem)))
	if !c.IsVector() {
		return bb.bitcast(bb.zext(s, c), t), nil
	}
	vt := Vec(c.Bits()/32, 32)
	v := bb.insert(Zero(vt), bb.zext(s, I32), Const(I32, 0))
	return bb.bitcast(v, t), nil
}
