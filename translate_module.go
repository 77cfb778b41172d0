package pxlower

import (
	"errors"
	"fmt"
	"os"

	"github.com/xgo-dev/llvm"
)

// TranslateModule emits root as LLVM IR and loads it into an llvm.Module.
// The module is built through the LLVM API when every node has a direct
// rule, and parsed from the emitted text otherwise.
//
// Caller owns the returned module and should call Dispose when finished.
func TranslateModule(root *Expr, opts EmitOptions) (llvm.Module, error) {
	mod, err := translateModuleDirect(root, opts)
	if err == nil {
		return mod, nil
	}
	if !errors.Is(err, errDirectModuleUnsupported) {
		return llvm.Module{}, err
	}
	Logger().Debug("pxlower: direct module fallback", "reason", err)
	ir, err := EmitLLVM(root, opts)
	if err != nil {
		return llvm.Module{}, err
	}
	mod, err = parseIRModule(ir)
	if err != nil {
		return llvm.Module{}, err
	}
	if err := llvm.VerifyModule(mod, llvm.ReturnStatusAction); err != nil {
		mod.Dispose()
		return llvm.Module{}, fmt.Errorf("verify generated ir: %w", err)
	}
	return mod, nil
}

func parseIRModule(ir string) (llvm.Module, error) {
	f, err := os.CreateTemp("", "pxlower-*.ll")
	if err != nil {
		return llvm.Module{}, fmt.Errorf("create temp ir file: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	defer os.Remove(name)

	if err := os.WriteFile(name, []byte(ir), 0644); err != nil {
		return llvm.Module{}, fmt.Errorf("write temp ir file: %w", err)
	}
	buf, err := llvm.NewMemoryBufferFromFile(name)
	if err != nil {
		return llvm.Module{}, fmt.Errorf("open temp ir file: %w", err)
	}
	// NOTE: do not dispose MemoryBuffer here. ParseIR takes ownership and
	// disposing the buffer can crash.
	ctx := llvm.GlobalContext()
	mod, err := (&ctx).ParseIR(buf)
	if err != nil {
		return llvm.Module{}, fmt.Errorf("parse generated ir: %w", err)
	}
	return mod, nil
}
