package pxlower

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestI4PromotedOpsExhaustive(t *testing.T) {
	for _, f := range []Features{baseline, fullX86} {
		en := NewEngine(Options{Features: f})
		for _, typ := range narrowTypes(4) {
			for _, op := range []Opcode{OpSub, OpMul, OpShl, OpSrl, OpSra} {
				checkAllPairs(t, en, op, 0, typ)
			}
			for _, c := range AllConds {
				checkAllPairs(t, en, OpSetCC, c, typ)
			}
		}
	}
}

func TestByteMulPromotion(t *testing.T) {
	en := NewEngine(Options{})
	checkAllPairs(t, en, OpMul, 0, V32I8)

	rng := rand.New(rand.NewPCG(3, 4))
	for _, typ := range narrowTypes(8) {
		for i := 0; i < 16; i++ {
			x, env := Sample(OpMul, typ, rng)
			if err := en.Check(x, env); err != nil {
				t.Fatal(err)
			}
		}
	}
}

// A v32i4 multiply promotes to a v16i8 multiply, which promotes again.
func TestPromotionNests(t *testing.T) {
	en := NewEngine(Options{})
	x := Binary(OpMul, Arg("a", V32I4), Arg("b", V32I4))
	r, err := en.Lower(x)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	seen := map[*Expr]bool{}
	var walk func(e *Expr)
	walk = func(e *Expr) {
		if seen[e] {
			return
		}
		seen[e] = true
		if e.Op == OpMul && e.Type == V16I8 {
			found = true
		}
		for _, a := range e.Args {
			walk(a)
		}
	}
	walk(r)
	if !found {
		t.Fatalf("single-step lowering has no v16i8 multiply:\n%s", r)
	}
	full, err := en.LowerTree(x)
	if err != nil {
		t.Fatal(err)
	}
	checkNative(t, full)
}

func TestPromotedSetCCRejectsUnknownPredicate(t *testing.T) {
	en := NewEngine(Options{})
	for _, typ := range narrowTypes(4) {
		x := SetCC(Cond(len(AllConds)), Arg("a", typ), Arg("b", typ))
		if _, err := en.Lower(x); !errors.Is(err, ErrUnsupportedOperation) {
			t.Fatalf("%s: got %v", typ, err)
		}
	}
}
