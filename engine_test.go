package pxlower

import (
	"errors"
	"math/rand/v2"
	"testing"

	"golang.org/x/sync/errgroup"
)

var (
	baseline = Features{}
	fullX86  = Features{SSE2: true, AVX: true, AVX2: true, BMI2: true, Is64Bit: true}
)

// lowerEval legalizes x and evaluates the lowered tree.
func lowerEval(t *testing.T, en *Engine, x *Expr, env Env) []Value {
	t.Helper()
	lowered, err := en.LowerTree(x)
	if err != nil {
		t.Fatalf("lower %s %s: %v", x.Op, x.Type, err)
	}
	checkNative(t, lowered)
	vs, err := EvalAll(lowered, env)
	if err != nil {
		t.Fatalf("eval lowered %s %s: %v", x.Op, x.Type, err)
	}
	return vs
}

// checkNative fails when an operation in root still computes on a packed
// field type or a long integer.
func checkNative(t *testing.T, root *Expr) {
	t.Helper()
	seen := map[*Expr]bool{}
	var walk func(x *Expr)
	walk = func(x *Expr) {
		if seen[x] {
			return
		}
		seen[x] = true
		switch x.Op {
		case OpArg, OpConst, OpUndef, OpBitcast, OpMergeValues:
		default:
			if x.Type.IsNarrow() || x.Type.IsLong() {
				t.Fatalf("%s on %s survived lowering", x.Op, x.Type)
			}
		}
		for _, a := range x.Args {
			walk(a)
		}
	}
	walk(root)
}

func TestStrategyPriority(t *testing.T) {
	en := NewEngine(Options{})
	cases := []struct {
		op   Opcode
		typ  Type
		kind StrategyKind
		name string
	}{
		{OpAnd, V64I2, StrategyPassThrough, "and"},
		{OpAdd, V64I1, StrategyPassThrough, "xor"},
		{OpMul, V32I1, StrategyPassThrough, "and"},
		{OpAdd, V64I2, StrategyFormula, "i2-add"},
		{OpSetCC, V128I2, StrategyFormula, "i2-setcc"},
		{OpAdd, V32I4, StrategyFormula, "i4-add"},
		{OpMul, V32I4, StrategyPromote, "promote-mul"},
		{OpMul, V16I8, StrategyPromote, "promote-mul"},
		{OpExtractElt, V64I1, StrategyCustom, "bit"},
		{OpExtractElt, V128I1, StrategyCustom, "i16-lane"},
		{OpBuildVector, V32I4, StrategyCustom, "byte-groups"},
		{OpPackLow, V64I4, StrategyCustom, "compress"},
		{OpAdd, I128, StrategyCustom, "carry-chain/setcc"},
		{OpShl, I256, StrategyCustom, "word-shift"},
	}
	for _, c := range cases {
		info, ok := en.Strategy(c.op, c.typ)
		if !ok {
			t.Fatalf("%s %s: no strategy", c.op, c.typ)
		}
		if info.Kind != c.kind || info.Name != c.name {
			t.Fatalf("%s %s: got %s, want %s (%s)", c.op, c.typ, info, c.kind, c.name)
		}
	}
}

func TestStrategyFollowsFeatures(t *testing.T) {
	en := NewEngine(Options{Features: fullX86})
	for _, c := range []struct {
		op   Opcode
		typ  Type
		name string
	}{
		{OpPackHigh, V64I2, "pext"},
		{OpPackLow, V16I8, "packus"},
		{OpPackLow, V32I8, "shuffle"},
		{OpUAddO, I128, "carry-chain/movmask"},
		{OpUAddE, I256, "carry-chain/movmask"},
	} {
		info, ok := en.Strategy(c.op, c.typ)
		if !ok || info.Name != c.name {
			t.Fatalf("%s %s: got %v, want %s", c.op, c.typ, info, c.name)
		}
	}
}

func TestTableOrder(t *testing.T) {
	tab := NewEngine(Options{}).Table()
	if len(tab) == 0 {
		t.Fatal("empty table")
	}
	for i := 1; i < len(tab); i++ {
		if tab[i-1].Type.Bits() > tab[i].Type.Bits() {
			t.Fatalf("entry %d (%s) sorts after %s", i, tab[i], tab[i-1])
		}
	}
}

func TestLowerErrors(t *testing.T) {
	en := NewEngine(Options{})
	cases := []struct {
		name string
		x    *Expr
		want error
	}{
		{"bad width", Binary(OpAdd, Arg("a", Vec(24, 2)), Arg("b", Vec(24, 2))), ErrUnsupportedType},
		{"no field strategy", Binary(OpAdd, Arg("a", V4I32), Arg("b", V4I32)), ErrUnsupportedType},
		{"missing operands", Binary(OpMul, Arg("a", V32I4), Arg("b", V32I4)).withArgs(nil), ErrMalformedRequest},
		{"long sub", NewNode(OpSub, I128, Arg("a", I128), Arg("b", I128)), ErrUnsupportedOperation},
		{"mixed operands", Binary(OpAdd, Arg("a", V64I2), Arg("b", V32I4)), ErrMalformedRequest},
		{"vector carry in", UAddE(Arg("a", I128), Arg("b", I128), Arg("c", V2I64)), ErrMalformedRequest},
		{"variable wide shift", Binary(OpShl, Arg("a", I128), Arg("n", I128)), ErrMalformedRequest},
	}
	for _, c := range cases {
		_, err := en.Lower(c.x)
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: got %v, want %v", c.name, err, c.want)
		}
	}
}

func TestLowerTreeKeepsNativeNodes(t *testing.T) {
	en := NewEngine(Options{})
	a, b := Arg("a", V4I32), Arg("b", V4I32)
	x := Binary(OpAdd, a, b)
	r, err := en.LowerTree(x)
	if err != nil {
		t.Fatal(err)
	}
	if r != x {
		t.Fatalf("native add was rewritten:\n%s", r)
	}
}

func TestEveryEntryMatchesReference(t *testing.T) {
	for _, f := range []Features{baseline, fullX86} {
		en := NewEngine(Options{Features: f})
		rng := rand.New(rand.NewPCG(1, 2))
		for _, info := range en.Table() {
			for trial := 0; trial < 8; trial++ {
				x, env := Sample(info.Op, info.Type, rng)
				if err := en.Check(x, env); err != nil {
					t.Fatalf("[%s] %s: %v", f, info, err)
				}
			}
		}
	}
}

func TestEngineConcurrentUse(t *testing.T) {
	en := NewEngine(Options{Features: fullX86})
	tab := en.Table()
	var g errgroup.Group
	for w := 0; w < 4; w++ {
		seed := uint64(w)
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, 7))
			for _, info := range tab {
				x, env := Sample(info.Op, info.Type, rng)
				if err := en.Check(x, env); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
