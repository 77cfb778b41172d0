package pxlower

import (
	"errors"
	"testing"
)

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures("+sse2, avx,+bmi2,-bmi2,64bit")
	if err != nil {
		t.Fatal(err)
	}
	want := Features{SSE2: true, AVX: true, Is64Bit: true}
	if f != want {
		t.Fatalf("got %+v, want %+v", f, want)
	}
	if got := f.String(); got != "+64bit,+avx,+sse2" {
		t.Fatalf("String() = %q", got)
	}
	if back, _ := ParseFeatures(f.String()); back != f {
		t.Fatalf("%q does not parse back", f)
	}
	if got := fullX86.TargetFeatures(); got != "+sse2,+avx,+avx2,+bmi2" {
		t.Fatalf("TargetFeatures() = %q", got)
	}
	if _, err := ParseFeatures("+neon"); !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("unknown feature: got %v", err)
	}
	if f, _ := ParseFeatures(""); f != (Features{}) {
		t.Fatalf("empty list gives %+v", f)
	}
}

func TestPextNeeds64Bit(t *testing.T) {
	en := NewEngine(Options{Features: Features{BMI2: true}})
	if info, _ := en.Strategy(OpPackLow, V64I2); info.Name != "compress" {
		t.Fatalf("32-bit host picked %s", info.Name)
	}
}
