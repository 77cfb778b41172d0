package pxlower

import (
	"fmt"
	"math/bits"
)

// Eval computes the first result of e with the arguments bound by env.
//
// Semantics are per lane with wraparound; shift amounts of at least the
// lane width give zero (SRA: the sign), comparisons give all-ones lanes and
// undef reads as zero. Evaluating a logical node directly is the reference
// for its lowering.
func Eval(e *Expr, env Env) (Value, error) {
	vs, err := EvalAll(e, env)
	if err != nil {
		return Value{}, err
	}
	return vs[0], nil
}

// EvalAll computes every result of e (see Expr.ResultTypes).
func EvalAll(e *Expr, env Env) ([]Value, error) {
	ev := &evaluator{env: env, memo: map[*Expr][]Value{}}
	return ev.eval(e)
}

type evaluator struct {
	env  Env
	memo map[*Expr][]Value
}

func (ev *evaluator) eval(e *Expr) ([]Value, error) {
	if vs, ok := ev.memo[e]; ok {
		return vs, nil
	}
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		vs, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = vs[0]
	}
	vs, err := ev.apply(e, args)
	if err != nil {
		return nil, err
	}
	ev.memo[e] = vs
	return vs, nil
}

func one(v Value) []Value { return []Value{v} }

func (ev *evaluator) apply(e *Expr, args []Value) ([]Value, error) {
	t := e.Type
	fail := func(format string, a ...any) ([]Value, error) {
		return nil, fmt.Errorf("eval %s %s: %s", e.Op, t, fmt.Sprintf(format, a...))
	}
	need := func(n int) bool { return len(args) == n }

	switch e.Op {
	case OpUndef:
		return one(Value{}), nil
	case OpConst:
		return one(truncBits(e.Val, t.Bits())), nil
	case OpArg:
		v, ok := ev.env[e.Name]
		if !ok {
			return fail("unbound argument %q", e.Name)
		}
		return one(truncBits(v, t.Bits())), nil

	case OpBitcast:
		if !need(1) || e.Args[0].Type.Bits() != t.Bits() {
			return fail("bad bitcast")
		}
		return one(args[0]), nil

	case OpTrunc, OpZext, OpSext, OpAnyExt:
		if !need(1) {
			return fail("want 1 operand")
		}
		return ev.resize(e, args[0])

	case OpAnd, OpOr, OpXor:
		if !need(2) {
			return fail("want 2 operands")
		}
		var z Value
		switch e.Op {
		case OpAnd:
			z.And(&args[0], &args[1])
		case OpOr:
			z.Or(&args[0], &args[1])
		default:
			z.Xor(&args[0], &args[1])
		}
		return one(truncBits(z, t.Bits())), nil

	case OpAdd, OpSub, OpMul, OpShl, OpSrl, OpSra:
		if !need(2) {
			return fail("want 2 operands")
		}
		if t.Elem > 64 {
			return one(wideArith(e.Op, t.Elem, args[0], args[1])), nil
		}
		return one(laneWise(t, args[0], args[1], func(x, y uint64) uint64 {
			return laneArith(e.Op, t.Elem, x, y)
		})), nil

	case OpSetCC:
		if !need(2) {
			return fail("want 2 operands")
		}
		if t.Elem > 64 {
			if compareWide(e.Cond, t.Elem, args[0], args[1]) {
				var z Value
				z.SetAllOne()
				return one(truncBits(z, t.Bits())), nil
			}
			return one(Value{}), nil
		}
		return one(laneWise(t, args[0], args[1], func(x, y uint64) uint64 {
			if compareLane(e.Cond, t.Elem, x, y) {
				return laneMask(t.Elem)
			}
			return 0
		})), nil

	case OpSelect:
		if !need(3) {
			return fail("want 3 operands")
		}
		if mt := e.Args[0].Type; mt != t {
			// lane select: any set bit in a mask lane picks a
			if mt.NumLanes() != t.NumLanes() || t.Elem > 64 {
				return fail("mask %s does not match", mt)
			}
			var z Value
			for i := 0; i < t.NumLanes(); i++ {
				src := &args[2]
				if lane(&args[0], mt.Elem, i) != 0 {
					src = &args[1]
				}
				setLane(&z, t.Elem, i, lane(src, t.Elem, i))
			}
			return one(z), nil
		}
		var a, nm, z Value
		a.And(&args[0], &args[1])
		nm.Not(&args[0])
		nm.And(&nm, &args[2])
		z.Or(&a, &nm)
		return one(truncBits(z, t.Bits())), nil

	case OpBuildVector:
		if !t.IsVector() || len(args) != t.Lanes || t.Elem > 64 {
			return fail("want %d scalar operands, have %d", t.NumLanes(), len(args))
		}
		var z Value
		for i, a := range args {
			if e.Args[i].Op == OpUndef {
				continue
			}
			setLane(&z, t.Elem, i, a.Uint64()&laneMask(t.Elem))
		}
		return one(z), nil

	case OpExtractElt:
		if !need(2) {
			return fail("want vector, index")
		}
		vt := e.Args[0].Type
		idx, ok := laneIndex(args[1], vt)
		if !ok {
			return fail("index %s out of range", args[1].Dec())
		}
		var z Value
		z.SetUint64(lane(&args[0], vt.Elem, idx))
		return one(truncBits(z, t.Bits())), nil

	case OpInsertElt:
		if !need(3) {
			return fail("want vector, element, index")
		}
		idx, ok := laneIndex(args[2], t)
		if !ok {
			return fail("index %s out of range", args[2].Dec())
		}
		z := args[0]
		setLane(&z, t.Elem, idx, args[1].Uint64()&laneMask(t.Elem))
		return one(z), nil

	case OpScalarToVector:
		if !need(1) || !t.IsVector() {
			return fail("want 1 scalar operand")
		}
		var z Value
		setLane(&z, t.Elem, 0, args[0].Uint64()&laneMask(t.Elem))
		return one(z), nil

	case OpShuffle:
		if !need(2) {
			return fail("want 2 operands")
		}
		n := e.Args[0].Type.NumLanes()
		src := append(lanesOf(e.Args[0].Type, args[0]), lanesOf(e.Args[1].Type, args[1])...)
		var z Value
		for i, m := range e.Mask {
			if m < 0 {
				continue
			}
			if m >= 2*n {
				return fail("mask index %d out of range", m)
			}
			setLane(&z, t.Elem, i, src[m])
		}
		return one(z), nil

	case OpPackLow, OpPackHigh:
		if !need(2) {
			return fail("want 2 operands")
		}
		src := append(lanesOf(t, args[0]), lanesOf(t, args[1])...)
		odd := 0
		if e.Op == OpPackHigh {
			odd = 1
		}
		var z Value
		for i := 0; i < t.Lanes; i++ {
			setLane(&z, t.Elem, i, src[2*i+odd])
		}
		return one(z), nil

	case OpUAddO, OpUAddE:
		if (e.Op == OpUAddO && !need(2)) || (e.Op == OpUAddE && !need(3)) {
			return fail("bad operand count %d", len(args))
		}
		var carry Value
		if e.Op == OpUAddE {
			carry.SetUint64(args[2].Uint64() & 1)
		}
		sum, c := addWithCarry(t.Bits(), args[0], args[1], carry)
		var cv Value
		if c {
			cv.SetOne()
		}
		return []Value{sum, cv}, nil

	case OpMergeValues:
		return append([]Value(nil), args...), nil

	case OpPackUS:
		if !need(2) {
			return fail("want 2 operands")
		}
		st := e.Args[0].Type
		src := append(lanesOf(st, args[0]), lanesOf(st, args[1])...)
		max := int64(laneMask(t.Elem))
		var z Value
		for i, x := range src {
			s := sext64(x, st.Elem)
			switch {
			case s < 0:
				s = 0
			case s > max:
				s = max
			}
			setLane(&z, t.Elem, i, uint64(s))
		}
		return one(z), nil

	case OpPext:
		if !need(2) {
			return fail("want 2 operands")
		}
		var z Value
		z.SetUint64(pext64(args[0].Uint64(), args[1].Uint64()))
		return one(truncBits(z, t.Bits())), nil

	case OpMovMask:
		if !need(1) {
			return fail("want 1 operand")
		}
		st := e.Args[0].Type
		var m uint64
		for i := 0; i < st.NumLanes(); i++ {
			m |= lane(&args[0], st.Elem, i) >> (st.Elem - 1) << i
		}
		var z Value
		z.SetUint64(m)
		return one(truncBits(z, t.Bits())), nil

	case OpByteShl, OpByteSrl:
		if !need(1) || t.Bits() != 128 {
			return fail("want one 128-bit operand")
		}
		if e.Imm >= 16 {
			return one(Value{}), nil
		}
		var z Value
		if e.Op == OpByteShl {
			z.Lsh(&args[0], uint(e.Imm*8))
		} else {
			z.Rsh(&args[0], uint(e.Imm*8))
		}
		return one(truncBits(z, 128)), nil
	}
	return fail("no evaluation rule")
}

func (ev *evaluator) resize(e *Expr, v Value) ([]Value, error) {
	from, to := e.Args[0].Type, e.Type
	if from.NumLanes() != to.NumLanes() {
		return nil, fmt.Errorf("eval %s: lane count %s -> %s", e.Op, from, to)
	}
	if from.Elem > 64 || to.Elem > 64 {
		switch e.Op {
		case OpSext:
			return one(truncBits(signExtend(v, from.Elem), to.Bits())), nil
		default:
			return one(truncBits(v, to.Bits())), nil
		}
	}
	out := make([]uint64, to.NumLanes())
	for i := range out {
		x := lane(&v, from.Elem, i)
		if e.Op == OpSext {
			x = uint64(sext64(x, from.Elem))
		}
		out[i] = x & laneMask(to.Elem)
	}
	return one(valueOfLanes(to.Elem, out)), nil
}

func laneIndex(idx Value, vt Type) (int, bool) {
	if !idx.IsUint64() || idx.Uint64() >= uint64(vt.NumLanes()) {
		return 0, false
	}
	return int(idx.Uint64()), true
}

func laneWise(t Type, a, b Value, f func(x, y uint64) uint64) Value {
	var z Value
	for i := 0; i < t.NumLanes(); i++ {
		setLane(&z, t.Elem, i, f(lane(&a, t.Elem, i), lane(&b, t.Elem, i))&laneMask(t.Elem))
	}
	return z
}

func laneArith(op Opcode, w int, x, y uint64) uint64 {
	m := laneMask(w)
	switch op {
	case OpAdd:
		return (x + y) & m
	case OpSub:
		return (x - y) & m
	case OpMul:
		return (x * y) & m
	case OpShl:
		if y >= uint64(w) {
			return 0
		}
		return (x << y) & m
	case OpSrl:
		if y >= uint64(w) {
			return 0
		}
		return x >> y
	case OpSra:
		if y >= uint64(w) {
			y = uint64(w - 1)
		}
		return uint64(sext64(x, w)>>y) & m
	}
	panic("laneArith: " + op.String())
}

func compareLane(c Cond, w int, x, y uint64) bool {
	sx, sy := sext64(x, w), sext64(y, w)
	switch c {
	case CondEQ:
		return x == y
	case CondNE:
		return x != y
	case CondSLT:
		return sx < sy
	case CondSGT:
		return sx > sy
	case CondSLE:
		return sx <= sy
	case CondSGE:
		return sx >= sy
	case CondULT:
		return x < y
	case CondUGT:
		return x > y
	case CondULE:
		return x <= y
	case CondUGE:
		return x >= y
	}
	return false
}

func wideArith(op Opcode, w int, a, b Value) Value {
	var z Value
	switch op {
	case OpAdd:
		z.Add(&a, &b)
	case OpSub:
		z.Sub(&a, &b)
	case OpMul:
		z.Mul(&a, &b)
	case OpShl, OpSrl, OpSra:
		n := uint64(MaxBits)
		if b.IsUint64() && b.Uint64() < n {
			n = b.Uint64()
		}
		switch op {
		case OpShl:
			if n >= uint64(w) {
				return Value{}
			}
			z.Lsh(&a, uint(n))
		case OpSrl:
			if n >= uint64(w) {
				return Value{}
			}
			z.Rsh(&a, uint(n))
		default:
			if n >= uint64(w) {
				n = uint64(w - 1)
			}
			s := signExtend(a, w)
			z.SRsh(&s, uint(n))
		}
	}
	return truncBits(z, w)
}

func compareWide(c Cond, w int, a, b Value) bool {
	sa, sb := signExtend(a, w), signExtend(b, w)
	switch c {
	case CondEQ:
		return a.Eq(&b)
	case CondNE:
		return !a.Eq(&b)
	case CondSLT:
		return sa.Slt(&sb)
	case CondSGT:
		return sa.Sgt(&sb)
	case CondSLE:
		return !sa.Sgt(&sb)
	case CondSGE:
		return !sa.Slt(&sb)
	case CondULT:
		return a.Lt(&b)
	case CondUGT:
		return a.Gt(&b)
	case CondULE:
		return !a.Gt(&b)
	case CondUGE:
		return !a.Lt(&b)
	}
	return false
}

// addWithCarry adds x + y + cin over nbits and reports the carry out.
func addWithCarry(nbits int, x, y, cin Value) (Value, bool) {
	var s Value
	_, o1 := s.AddOverflow(&x, &y)
	_, o2 := s.AddOverflow(&s, &cin)
	if nbits >= MaxBits {
		return s, o1 || o2
	}
	carry := s[nbits/64]>>(nbits%64)&1 == 1
	return truncBits(s, nbits), carry
}

// pext64 gathers the bits of x selected by m into the low bits.
func pext64(x, m uint64) uint64 {
	var r uint64
	k := 0
	for m != 0 {
		b := bits.TrailingZeros64(m)
		r |= (x >> b & 1) << k
		k++
		m &= m - 1
	}
	return r
}
