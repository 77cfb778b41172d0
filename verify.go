package pxlower

import (
	"fmt"
	"math/rand/v2"
)

// Sample builds the logical node the table entry (op, t) lowers, over
// fresh arguments, with random bindings for them. Shift amounts of long
// integers are constants, as the word-shift strategy requires.
func Sample(op Opcode, t Type, rng *rand.Rand) (*Expr, Env) {
	env := Env{}
	arg := func(name string, at Type) *Expr {
		env[name] = randomValue(at, rng)
		return Arg(name, at)
	}
	scalar := t.ElemType()
	if scalar.Elem < 8 {
		scalar = I8
	}
	index := func() *Expr {
		var v Value
		v.SetUint64(uint64(rng.IntN(t.NumLanes())))
		env["i"] = v
		return Arg("i", I32)
	}

	switch op {
	case OpSetCC:
		return SetCC(AllConds[rng.IntN(len(AllConds))], arg("a", t), arg("b", t)), env
	case OpShl, OpSrl, OpSra:
		if t.IsLong() {
			return Binary(op, arg("a", t), Const(t, uint64(rng.IntN(t.Bits()+1)))), env
		}
	case OpUAddE:
		return UAddE(arg("a", t), arg("b", t), arg("c", I1)), env
	case OpExtractElt:
		return ExtractElt(arg("v", t), index()), env
	case OpInsertElt:
		return InsertElt(arg("v", t), arg("e", scalar), index()), env
	case OpScalarToVector:
		return ScalarToVector(t, arg("e", scalar)), env
	case OpBuildVector:
		elts := make([]*Expr, t.NumLanes())
		for i := range elts {
			if rng.IntN(8) == 0 {
				elts[i] = Undef(scalar)
				continue
			}
			elts[i] = arg(fmt.Sprintf("e%d", i), scalar)
		}
		return BuildVector(t, elts...), env
	}
	return Binary(op, arg("a", t), arg("b", t)), env
}

func randomValue(t Type, rng *rand.Rand) Value {
	var v Value
	for i := range v {
		v[i] = rng.Uint64()
	}
	return truncBits(v, t.Bits())
}

// Check lowers x completely and compares every result of the lowered tree
// with the reference evaluation of x under env.
func (en *Engine) Check(x *Expr, env Env) error {
	lowered, err := en.LowerTree(x)
	if err != nil {
		return err
	}
	want, err := EvalAll(x, env)
	if err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	got, err := EvalAll(lowered, env)
	if err != nil {
		return fmt.Errorf("lowered: %w", err)
	}
	if len(got) != len(want) {
		return fmt.Errorf("%s %s: lowered tree has %d results, want %d", x.Op, x.Type, len(got), len(want))
	}
	for i, rt := range x.ResultTypes() {
		w := truncBits(want[i], rt.Bits())
		g := truncBits(got[i], rt.Bits())
		if !w.Eq(&g) {
			return fmt.Errorf("%s %s: result %d = %s, want %s", x.Op, x.Type, i, g.Hex(), w.Hex())
		}
	}
	return nil
}
