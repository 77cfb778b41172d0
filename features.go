package pxlower

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features selects the optional host fast paths. The zero value is the
// portable baseline: every strategy still works, only slower.
type Features struct {
	SSE2    bool // packuswb, movmskpd, byte shifts on i128
	AVX     bool // 256-bit movmskpd, v32i8 select with sign extension
	AVX2    bool // native 256-bit integer logic
	BMI2    bool // pext (needs Is64Bit)
	Is64Bit bool
}

// HostFeatures reports what the running CPU supports.
func HostFeatures() Features {
	is64 := runtime.GOARCH == "amd64"
	return Features{
		SSE2:    cpu.X86.HasSSE2,
		AVX:     cpu.X86.HasAVX,
		AVX2:    cpu.X86.HasAVX2,
		BMI2:    cpu.X86.HasBMI2,
		Is64Bit: is64,
	}
}

func (f Features) hasPext() bool { return f.BMI2 && f.Is64Bit }

var featureNames = map[string]func(*Features) *bool{
	"sse2":  func(f *Features) *bool { return &f.SSE2 },
	"avx":   func(f *Features) *bool { return &f.AVX },
	"avx2":  func(f *Features) *bool { return &f.AVX2 },
	"bmi2":  func(f *Features) *bool { return &f.BMI2 },
	"64bit": func(f *Features) *bool { return &f.Is64Bit },
}

// ParseFeatures reads an LLVM style list such as "+sse2,+avx,-bmi2".
// "host" starts from HostFeatures; names without a sign are enabled.
func ParseFeatures(s string) (Features, error) {
	var f Features
	for _, item := range strings.Split(s, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if item == "host" {
			f = HostFeatures()
			continue
		}
		on := true
		switch item[0] {
		case '+':
			item = item[1:]
		case '-':
			on = false
			item = item[1:]
		}
		field, ok := featureNames[item]
		if !ok {
			return Features{}, fmt.Errorf("%w %q", ErrUnknownFeature, item)
		}
		*field(&f) = on
	}
	return f, nil
}

// String renders f in the form ParseFeatures accepts.
func (f Features) String() string {
	var parts []string
	for name, field := range featureNames {
		if *field(&f) {
			parts = append(parts, "+"+name)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// TargetFeatures is the "target-features" attribute value for LLVM.
func (f Features) TargetFeatures() string {
	var parts []string
	if f.SSE2 {
		parts = append(parts, "+sse2")
	}
	if f.AVX {
		parts = append(parts, "+avx")
	}
	if f.AVX2 {
		parts = append(parts, "+avx2")
	}
	if f.BMI2 {
		parts = append(parts, "+bmi2")
	}
	return strings.Join(parts, ",")
}
