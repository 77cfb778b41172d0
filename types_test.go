package pxlower

import (
	"errors"
	"testing"
)

func TestParseType(t *testing.T) {
	for _, c := range []struct {
		in   string
		want Type
	}{
		{"i128", I128},
		{"v64i2", V64I2},
		{"<64 x i2>", V64I2},
		{" <8 x i4> ", V8I4},
		{"v256i1", V256I1},
	} {
		got, err := ParseType(c.in)
		if err != nil || got != c.want {
			t.Fatalf("ParseType(%q) = %v, %v", c.in, got, err)
		}
		if back, _ := ParseType(got.String()); back != got {
			t.Fatalf("%s does not parse back", got)
		}
	}
	for _, in := range []string{"", "x", "v0i2", "vi2", "i0", "i512", "<64 i2>"} {
		if _, err := ParseType(in); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("ParseType(%q): %v", in, err)
		}
	}
}

func TestTypeClasses(t *testing.T) {
	if !V16I2.IsNarrow() || !V256I1.IsNarrow() || V16I8.IsNarrow() || Vec(8, 2).IsNarrow() {
		t.Fatal("IsNarrow")
	}
	if !I128.IsLong() || !I256.IsLong() || I64.IsLong() || V2I64.IsLong() {
		t.Fatal("IsLong")
	}
	if got := V32I4.LLVM(); got != "<32 x i4>" {
		t.Fatalf("LLVM() = %s", got)
	}
	for _, c := range []struct{ in, want Type }{{V32I1, I32}, {V16I4, I64}, {V64I2, V2I64}, {I256, V4I64}} {
		if got, err := CarrierFor(c.in); err != nil || got != c.want {
			t.Fatalf("CarrierFor(%s) = %s, %v", c.in, got, err)
		}
	}
	if _, err := CarrierFor(Vec(3, 8)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("CarrierFor(v3i8): %v", err)
	}
}

func TestParseOpcodeAndCond(t *testing.T) {
	for op := OpUndef; op < numOpcodes; op++ {
		got, err := ParseOpcode(op.String())
		if err != nil || got != op {
			t.Fatalf("ParseOpcode(%s) = %s, %v", op, got, err)
		}
	}
	if _, err := ParseOpcode("fadd"); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatal(err)
	}
	for _, c := range AllConds {
		if got, err := ParseCond(c.String()); err != nil || got != c {
			t.Fatalf("ParseCond(%s) = %s, %v", c, got, err)
		}
	}
	if _, err := ParseCond("olt"); !errors.Is(err, ErrMalformedRequest) {
		t.Fatal(err)
	}
}
