//go:build !llgo
// +build !llgo

package pxlower

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/xgo-dev/llvm"
)

func TestTranslateModule(t *testing.T) {
	en := NewEngine(Options{Features: fullX86})
	lowered, err := en.LowerTree(Binary(OpMul, Arg("a", V16I4), Arg("b", V16I4)))
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		root *Expr
		opts EmitOptions
	}{
		{"direct", Binary(OpAdd, Arg("a", I32), Arg("b", I32)), EmitOptions{Name: "add32"}},
		{"lowered", lowered, EmitOptions{Name: "mul_v16i4", Features: fullX86}},
		// The raw carry node has no direct rule and goes through the text parser.
		{"fallback", UAddO(Arg("a", I128), Arg("b", I128)), EmitOptions{Name: "uaddo"}},
		{"pext", mustLower(t, en, PackLow(Arg("a", V64I2), Arg("b", V64I2))),
			EmitOptions{Name: "pack", TargetTriple: "x86_64-unknown-linux-gnu", Features: fullX86}},
	}
	for _, c := range cases {
		mod, err := TranslateModule(c.root, c.opts)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		fn := mod.NamedFunction(c.opts.Name)
		if fn.IsNil() {
			t.Fatalf("%s: function %q missing in\n%s", c.name, c.opts.Name, mod.String())
		}
		if c.opts.TargetTriple != "" && mod.Target() != c.opts.TargetTriple {
			t.Fatalf("%s: target %q", c.name, mod.Target())
		}
		mod.Dispose()
	}
}

// The text emitter and the LLVM parser must agree on every lowering.
func TestEmittedEntriesParse(t *testing.T) {
	rng := rand.New(rand.NewPCG(39, 40))
	for _, f := range []Features{baseline, {SSE2: true}, fullX86} {
		en := NewEngine(Options{Features: f})
		for _, info := range en.Table() {
			x, _ := Sample(info.Op, info.Type, rng)
			lowered, err := en.LowerTree(x)
			if err != nil {
				t.Fatal(err)
			}
			ir, err := EmitLLVM(lowered, EmitOptions{Features: f})
			if err != nil {
				t.Fatalf("[%s] %s: %v", f, info, err)
			}
			mod, err := parseIRModule(ir)
			if err != nil {
				t.Fatalf("[%s] %s: %v\n%s", f, info, err, ir)
			}
			if err := llvm.VerifyModule(mod, llvm.ReturnStatusAction); err != nil {
				t.Fatalf("[%s] %s: %v\n%s", f, info, err, ir)
			}
			mod.Dispose()
		}
	}
}

func TestTranslateModuleRejectsBadTree(t *testing.T) {
	x := Binary(OpAdd, Arg("a", I32), NewNode(OpTrunc, I32, Arg("a", I64)))
	_, err := TranslateModule(x, EmitOptions{})
	if err == nil || !strings.Contains(err.Error(), "argument") {
		t.Fatalf("got %v", err)
	}
}

func mustLower(t *testing.T, en *Engine, x *Expr) *Expr {
	t.Helper()
	r, err := en.LowerTree(x)
	if err != nil {
		t.Fatal(err)
	}
	return r
}
