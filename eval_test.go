package pxlower

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func evalLanes(t *testing.T, x *Expr, env Env) []uint64 {
	t.Helper()
	v, err := Eval(x, env)
	if err != nil {
		t.Fatal(err)
	}
	return LanesOf(x.Type, v)
}

func TestEvalLaneSemantics(t *testing.T) {
	a := ConstValue(V4I32, ValueOfLanes(V4I32, []uint64{1, 0x80000000, 5, 0xffffffff}))
	n := ConstValue(V4I32, ValueOfLanes(V4I32, []uint64{1, 31, 32, 40}))
	cases := []struct {
		name string
		x    *Expr
		want []uint64
	}{
		{"shl", Binary(OpShl, a, n), []uint64{2, 0, 0, 0}},
		{"srl", Binary(OpSrl, a, n), []uint64{0, 1, 0, 0}},
		{"sra", Binary(OpSra, a, n), []uint64{0, 0xffffffff, 0, 0xffffffff}},
		{"add wraps", Binary(OpAdd, a, a), []uint64{2, 0, 10, 0xfffffffe}},
		{"slt", SetCC(CondSLT, a, n), []uint64{0, 0xffffffff, 0xffffffff, 0xffffffff}},
		{"ult", SetCC(CondULT, a, n), []uint64{0, 0, 0xffffffff, 0}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, evalLanes(t, c.x, nil)); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", c.name, diff)
		}
	}
}

func TestEvalNarrowFields(t *testing.T) {
	a := ConstValue(V16I2, ValueOfLanes(V16I2, []uint64{1, 2, 3, 0, 1, 2, 3, 0, 1, 2, 3, 0, 1, 2, 3, 0}))
	b := Splat(V16I2, 3)
	got := evalLanes(t, Binary(OpAdd, a, b), nil)
	want := []uint64{0, 1, 2, 3, 0, 1, 2, 3, 0, 1, 2, 3, 0, 1, 2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	x := ExtractElt(a, Const(I32, 2))
	if x.Type != I8 {
		t.Fatalf("extract from v16i2 has type %s", x.Type)
	}
	if v, _ := Eval(x, nil); v.Uint64() != 3 {
		t.Fatalf("field 2 = %d", v.Uint64())
	}
}

func TestEvalHostOps(t *testing.T) {
	var x Value
	x.SetUint64(0xf0f0)
	var m Value
	m.SetUint64(0xff00)
	if v, _ := Eval(NewNode(OpPext, I64, ConstValue(I64, x), ConstValue(I64, m)), nil); v.Uint64() != 0xf0 {
		t.Fatalf("pext = %#x", v.Uint64())
	}

	w := ConstValue(V4I64, ValueOfLanes(V4I64, []uint64{1 << 63, 0, ^uint64(0), 5}))
	if v, _ := Eval(NewNode(OpMovMask, I32, w), nil); v.Uint64() != 0b0101 {
		t.Fatalf("movmask = %b", v.Uint64())
	}

	s := ConstValue(V8I16, ValueOfLanes(V8I16, []uint64{0, 1, 0xff, 0x100, 0xffff, 0x7fff, 0x80, 0x8000}))
	got := evalLanes(t, NewNode(OpPackUS, V16I8, s, s), nil)
	want := []uint64{0, 1, 0xff, 0xff, 0, 0xff, 0x80, 0}
	if diff := cmp.Diff(want, got[:8]); diff != "" {
		t.Fatalf("packus (-want +got):\n%s", diff)
	}

	var one Value
	one.SetOne()
	bs := &Expr{Op: OpByteShl, Type: V16I8, Args: []*Expr{ConstValue(V16I8, one)}, Imm: 3}
	if v, _ := Eval(bs, nil); v.Uint64() != 1<<24 {
		t.Fatalf("byte shift = %s", v.Hex())
	}
}

func TestEvalAddWithCarry(t *testing.T) {
	var ones, one Value
	ones.SetAllOne()
	one.SetOne()
	sum, c := addWithCarry(128, truncBits(ones, 128), Value{}, one)
	if !sum.IsZero() || !c {
		t.Fatalf("2^128-1 + 1 = %s carry %v", sum.Hex(), c)
	}
	sum, c = addWithCarry(256, ones, one, Value{})
	if !sum.IsZero() || !c {
		t.Fatalf("2^256-1 + 1 = %s carry %v", sum.Hex(), c)
	}
}

func TestEvalErrors(t *testing.T) {
	if _, err := Eval(Arg("a", I32), Env{}); err == nil {
		t.Fatal("unbound argument accepted")
	}
	if _, err := Eval(ExtractElt(Zero(V4I32), Const(I32, 4)), nil); err == nil {
		t.Fatal("out of range index accepted")
	}
	if _, err := Eval(NewNode(OpBitcast, I64, Zero(I32)), nil); err == nil {
		t.Fatal("size changing bitcast accepted")
	}
}
