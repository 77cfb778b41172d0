package pxlower

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func allNarrow() []Type {
	var ts []Type
	for _, fw := range []int{1, 2, 4} {
		ts = append(ts, narrowTypes(fw)...)
	}
	return ts
}

func TestExtractEveryField(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for _, f := range []Features{baseline, fullX86} {
		en := NewEngine(Options{Features: f})
		for _, typ := range allNarrow() {
			v := randomValue(typ, rng)
			want := LanesOf(typ, v)
			x := ExtractElt(Arg("v", typ), Arg("i", I32))
			lowered, err := en.LowerTree(x)
			if err != nil {
				t.Fatal(err)
			}
			checkNative(t, lowered)
			for i := range want {
				var idx Value
				idx.SetUint64(uint64(i))
				got, err := Eval(lowered, Env{"v": v, "i": idx})
				if err != nil {
					t.Fatal(err)
				}
				if got.Uint64() != want[i] {
					t.Fatalf("%s field %d = %d, want %d", typ, i, got.Uint64(), want[i])
				}
			}
		}
	}
}

func TestInsertThenExtract(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	for _, f := range []Features{baseline, fullX86} {
		en := NewEngine(Options{Features: f})
		for _, typ := range allNarrow() {
			for trial := 0; trial < 8; trial++ {
				v := randomValue(typ, rng)
				i := rng.IntN(typ.Lanes)
				e := rng.Uint64() & 0xff

				ins := InsertElt(Arg("v", typ), Arg("e", I8), Const(I32, uint64(i)))
				got := lowerEval(t, en, ins, Env{"v": v, "e": *new(Value).SetUint64(e)})[0]

				want := LanesOf(typ, v)
				want[i] = e & fieldMask(typ.Elem)
				if diff := cmp.Diff(want, LanesOf(typ, got)); diff != "" {
					t.Fatalf("insert %d into %s field %d (-want +got):\n%s", e, typ, i, diff)
				}
			}
		}
	}
}

// Writing a zero bit into a 1-bit field that is set must clear it.
func TestInsertClearsBit(t *testing.T) {
	en := NewEngine(Options{})
	var ones Value
	ones.SetAllOne()
	for _, typ := range narrowTypes(1) {
		x := InsertElt(Arg("v", typ), Arg("e", I8), Const(I32, 3))
		got := lowerEval(t, en, x, Env{"v": ones, "e": Value{}})[0]
		if l := LanesOf(typ, got); l[3] != 0 || l[2] != 1 || l[4] != 1 {
			t.Fatalf("%s: fields 2..4 = %v", typ, l[2:5])
		}
	}
}

func TestBuildVector(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	en := NewEngine(Options{})
	for _, typ := range allNarrow() {
		elts := make([]*Expr, typ.Lanes)
		env := Env{}
		want := make([]uint64, typ.Lanes)
		for i := range elts {
			if i%5 == 3 {
				elts[i] = Undef(I8)
				continue
			}
			name := "e" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			var v Value
			v.SetUint64(rng.Uint64() & 0xff)
			env[name] = v
			elts[i] = Arg(name, I8)
			want[i] = v.Uint64() & fieldMask(typ.Elem)
		}
		got := lowerEval(t, en, BuildVector(typ, elts...), env)[0]
		if diff := cmp.Diff(want, LanesOf(typ, got)); diff != "" {
			t.Fatalf("build %s (-want +got):\n%s", typ, diff)
		}
	}
}

func TestBuildConstantFastPaths(t *testing.T) {
	en := NewEngine(Options{})
	for _, typ := range allNarrow() {
		zeros := make([]*Expr, typ.Lanes)
		ones := make([]*Expr, typ.Lanes)
		for i := range zeros {
			zeros[i] = Const(I8, 0)
			ones[i] = Const(I8, 0xff)
		}
		ones[1] = Undef(I8)
		for _, c := range []struct {
			x    *Expr
			want bool
		}{{BuildVector(typ, zeros...), false}, {BuildVector(typ, ones...), true}} {
			r, err := en.Lower(c.x)
			if err != nil {
				t.Fatal(err)
			}
			if r.Op == OpBitcast {
				r = r.Args[0]
			}
			v, ok := r.IsConst()
			if !ok {
				t.Fatalf("%s constant build was not folded:\n%s", typ, r)
			}
			var all Value
			all.SetAllOne()
			all = truncBits(all, typ.Bits())
			if c.want != v.Eq(&all) {
				t.Fatalf("%s: constant %s", typ, v.Hex())
			}
		}
	}
}

func TestScalarToVector(t *testing.T) {
	en := NewEngine(Options{})
	for _, typ := range allNarrow() {
		var e Value
		e.SetUint64(0xb7)
		got := LanesOf(typ, lowerEval(t, en, ScalarToVector(typ, Arg("e", I8)), Env{"e": e})[0])
		want := make([]uint64, typ.Lanes)
		want[0] = 0xb7 & fieldMask(typ.Elem)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", typ, diff)
		}
	}
}
