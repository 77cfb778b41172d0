package pxlower

import (
	"math/bits"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPackNibbles(t *testing.T) {
	a := ValueOfLanes(V8I4, []uint64{1, 2, 3, 4, 9, 10, 11, 12})
	b := ValueOfLanes(V8I4, []uint64{5, 6, 7, 8, 13, 14, 15, 0})
	env := Env{"a": a, "b": b}
	for _, f := range []Features{baseline, fullX86} {
		en := NewEngine(Options{Features: f})
		low := lowerEval(t, en, PackLow(Arg("a", V8I4), Arg("b", V8I4)), env)[0]
		if diff := cmp.Diff([]uint64{1, 3, 9, 11, 5, 7, 13, 15}, LanesOf(V8I4, low)); diff != "" {
			t.Fatalf("[%s] pack low (-want +got):\n%s", f, diff)
		}
		high := lowerEval(t, en, PackHigh(Arg("a", V8I4), Arg("b", V8I4)), env)[0]
		if diff := cmp.Diff([]uint64{2, 4, 10, 12, 6, 8, 14, 0}, LanesOf(V8I4, high)); diff != "" {
			t.Fatalf("[%s] pack high (-want +got):\n%s", f, diff)
		}
	}
}

// Pack low and pack high of the same pair together hold every field once.
func TestPackRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	for _, f := range []Features{baseline, fullX86} {
		en := NewEngine(Options{Features: f})
		types := append(allNarrow(), narrowTypes(8)...)
		for _, typ := range types {
			a, b := randomValue(typ, rng), randomValue(typ, rng)
			env := Env{"a": a, "b": b}
			lo := LanesOf(typ, lowerEval(t, en, PackLow(Arg("a", typ), Arg("b", typ)), env)[0])
			hi := LanesOf(typ, lowerEval(t, en, PackHigh(Arg("a", typ), Arg("b", typ)), env)[0])

			all := append(LanesOf(typ, a), LanesOf(typ, b)...)
			got := make([]uint64, len(all))
			for i := range lo {
				got[2*i], got[2*i+1] = lo[i], hi[i]
			}
			if diff := cmp.Diff(all, got); diff != "" {
				t.Fatalf("[%s] %s interleave (-want +got):\n%s", f, typ, diff)
			}
		}
	}
}

func TestCompressMatchesPext(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 14))
	masks := []uint64{0x5555555555555555, 0xaaaaaaaaaaaaaaaa, 0x3333333333333333, 0xcccccccccccccccc,
		0x0f0f0f0f0f0f0f0f, 0xf0f0f0f0f0f0f0f0, 0x00ff00ff00ff00ff, 0x8000000000000001}
	var b builder
	for _, m := range masks {
		steps := compressSteps(m)
		x := b.compress(Arg("w", I64), m, steps)
		for trial := 0; trial < 32; trial++ {
			w := rng.Uint64()
			var v Value
			v.SetUint64(w)
			got, err := Eval(x, Env{"w": v})
			if err != nil {
				t.Fatal(err)
			}
			if want := pext64(w, m); got.Uint64() != want {
				t.Fatalf("compress(%#x, %#x) = %#x, want %#x", w, m, got.Uint64(), want)
			}
			if got.Uint64()>>bits.OnesCount64(m) != 0 {
				t.Fatalf("compress(%#x, %#x) left bits above the gathered field", w, m)
			}
		}
	}
}

func TestShuffleCombinesToPack(t *testing.T) {
	en := NewEngine(Options{})
	a, b := Arg("a", V64I2), Arg("b", V64I2)
	mask := make([]int, 64)
	for i := range mask {
		mask[i] = 2*i + 1
	}
	mask[7] = -1
	r, ok, err := en.Combine(Shuffle(a, b, mask))
	if err != nil || !ok {
		t.Fatalf("shuffle not combined: ok=%v err=%v", ok, err)
	}
	rng := rand.New(rand.NewPCG(15, 16))
	env := Env{"a": randomValue(V64I2, rng), "b": randomValue(V64I2, rng)}
	want, _ := Eval(PackHigh(a, b), env)
	got, err := Eval(r, env)
	if err != nil {
		t.Fatal(err)
	}
	if !want.Eq(&got) {
		t.Fatalf("got %s, want %s", got.Hex(), want.Hex())
	}

	mask[3] = 0
	if _, ok, _ := en.Combine(Shuffle(a, b, mask)); ok {
		t.Fatal("non-pack mask was combined")
	}
}
