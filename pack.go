package pxlower

// Pack gathers the even (PackLow) or odd (PackHigh) fields of the
// concatenation of two vectors. Even field 2i is the low half of the
// double-width field i, for every strategy below.

func (en *Engine) packName(t Type) string {
	switch {
	case t.Elem == 8 && t == V16I8 && en.opts.Features.SSE2:
		return "packus"
	case t.Elem == 8:
		return "shuffle"
	case en.opts.Features.hasPext():
		return "pext"
	}
	return "compress"
}

func (en *Engine) lowerPack(x *Expr) (*Expr, error) {
	return en.pack(x.Type, x.Args[0], x.Args[1], x.Op == OpPackHigh)
}

func (en *Engine) pack(t Type, a, b *Expr, odd bool) (*Expr, error) {
	if t.Elem == 8 {
		return en.packBytes(t, a, b, odd), nil
	}
	c, err := en.carriers.lookup(t)
	if err != nil {
		return nil, err
	}
	bb := en.b
	kind := maskEven
	if odd {
		kind = maskOdd
	}
	sel := bb.masks.get(64, t.Elem, kind)
	m := sel.Uint64()

	gather := func(w *Expr) *Expr { return bb.pext(w, Const(I64, m)) }
	if !en.opts.Features.hasPext() {
		steps := compressSteps(m)
		gather = func(w *Expr) *Expr { return bb.compress(w, m, steps) }
	}

	// Each 64-bit word yields 32 gathered bits; a 32-bit carrier is one
	// zero-extended word and yields 16.
	chunkBits := 32
	if c.Bits() == 32 {
		chunkBits = 16
	}
	var chunks []*Expr
	for _, v := range []*Expr{a, b} {
		for _, w := range bb.words(v, c) {
			chunks = append(chunks, gather(w))
		}
	}
	words := make([]*Expr, 0, len(chunks)/2)
	for i := 0; i < len(chunks); i += 2 {
		words = append(words, bb.or(chunks[i], bb.shl(chunkBits, chunks[i+1])))
	}

	switch c.Bits() {
	case 32:
		return bb.bitcast(bb.trunc(words[0], I32), t), nil
	case 64:
		return bb.bitcast(words[0], t), nil
	}
	return bb.bitcast(BuildVector(wordType(c.Bits()), words...), t), nil
}

// packBytes keeps the low (or high) byte of every 16-bit lane with
// packuswb on SSE2, or uses a plain two-input shuffle.
func (en *Engine) packBytes(t Type, a, b *Expr, odd bool) *Expr {
	bb := en.b
	if t == V16I8 && en.opts.Features.SSE2 {
		prep := func(v *Expr) *Expr {
			v = bb.bitcast(v, V8I16)
			if odd {
				return bb.srl(8, v)
			}
			return bb.and(v, Splat(V8I16, 0xff))
		}
		return bb.packus(prep(a), prep(b))
	}
	mask := make([]int, t.Lanes)
	for i := range mask {
		mask[i] = 2 * i
		if odd {
			mask[i]++
		}
	}
	return bb.shuffle(bb.bitcast(a, t), bb.bitcast(b, t), mask...)
}

// compressSteps precomputes the move masks of the six stage compress
// network for a constant selector m (Hacker's Delight, section 7-4).
func compressSteps(m uint64) [6]uint64 {
	var mv [6]uint64
	mk := ^m << 1
	for i := range mv {
		mp := mk ^ mk<<1
		mp ^= mp << 2
		mp ^= mp << 4
		mp ^= mp << 8
		mp ^= mp << 16
		mp ^= mp << 32
		mv[i] = mp & m
		m = m ^ mv[i] | mv[i]>>(1<<i)
		mk &^= mp
	}
	return mv
}

// compress is the portable pext: gather the bits of w selected by m.
func (b builder) compress(w *Expr, m uint64, steps [6]uint64) *Expr {
	x := b.and(w, Const(I64, m))
	for i, mv := range steps {
		if mv == 0 {
			continue
		}
		t := b.and(x, Const(I64, mv))
		x = b.or(b.xor(x, t), b.srl(1<<i, t))
	}
	return x
}
