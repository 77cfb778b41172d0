package pxlower

import (
	"errors"
	"fmt"

	"github.com/xgo-dev/llvm"
)

var errDirectModuleUnsupported = errors.New("direct module lowering unsupported")

func directUnsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errDirectModuleUnsupported, fmt.Sprintf(format, args...))
}

var intPredicates = map[Cond]llvm.IntPredicate{
	CondEQ: llvm.IntEQ, CondNE: llvm.IntNE,
	CondSLT: llvm.IntSLT, CondSGT: llvm.IntSGT, CondSLE: llvm.IntSLE, CondSGE: llvm.IntSGE,
	CondULT: llvm.IntULT, CondUGT: llvm.IntUGT, CondULE: llvm.IntULE, CondUGE: llvm.IntUGE,
}

// translateModuleDirect builds the same function as EmitLLVM through the
// LLVM builder API. Host intrinsics are left to the textual path.
func translateModuleDirect(root *Expr, opts EmitOptions) (llvm.Module, error) {
	if root == nil {
		return llvm.Module{}, fmt.Errorf("nil expression")
	}
	name := opts.Name
	if name == "" {
		name = "lowered"
	}
	params, err := collectArgs(root)
	if err != nil {
		return llvm.Module{}, err
	}

	ctx := llvm.GlobalContext()
	mod := ctx.NewModule("pxlower")
	if opts.TargetTriple != "" {
		mod.SetTarget(opts.TargetTriple)
	}
	d := &directCtx{ctx: ctx, vals: map[*Expr][]llvm.Value{}, args: map[string]llvm.Value{}}

	rts := root.ResultTypes()
	var retTy llvm.Type
	if len(rts) == 1 {
		retTy = d.typ(rts[0])
	} else {
		elems := make([]llvm.Type, len(rts))
		for i, t := range rts {
			elems[i] = d.typ(t)
		}
		retTy = ctx.StructType(elems, false)
	}
	argTys := make([]llvm.Type, len(params))
	for i, p := range params {
		argTys[i] = d.typ(p.Type)
	}
	fv := llvm.AddFunction(mod, name, llvm.FunctionType(retTy, argTys, false))
	for i, p := range fv.Params() {
		p.SetName(params[i].Name)
		d.args[params[i].Name] = p
	}
	if tf := opts.Features.TargetFeatures(); tf != "" {
		fv.AddFunctionAttr(ctx.CreateStringAttribute("target-features", tf))
	}

	entry := ctx.AddBasicBlock(fv, "entry")
	d.b = ctx.NewBuilder()
	defer d.b.Dispose()
	d.b.SetInsertPointAtEnd(entry)

	vs, err := d.emit(root)
	if err != nil {
		mod.Dispose()
		return llvm.Module{}, err
	}
	if len(vs) == 1 {
		d.b.CreateRet(vs[0])
	} else {
		cur := llvm.Undef(retTy)
		for i, v := range vs {
			cur = d.b.CreateInsertValue(cur, v, i, "")
		}
		d.b.CreateRet(cur)
	}
	if err := llvm.VerifyModule(mod, llvm.ReturnStatusAction); err != nil {
		mod.Dispose()
		return llvm.Module{}, fmt.Errorf("module verification failed in direct path: %w", err)
	}
	return mod, nil
}

type directCtx struct {
	ctx  llvm.Context
	b    llvm.Builder
	vals map[*Expr][]llvm.Value
	args map[string]llvm.Value
}

func (d *directCtx) typ(t Type) llvm.Type {
	it := d.ctx.IntType(t.Elem)
	if t.IsVector() {
		return llvm.VectorType(it, t.Lanes)
	}
	return it
}

func (d *directCtx) constant(t Type, v Value) llvm.Value {
	v = truncBits(v, t.Bits())
	if !t.IsVector() {
		if t.Elem <= 64 {
			return llvm.ConstInt(d.typ(t), v.Uint64(), false)
		}
		return llvm.ConstIntFromString(d.typ(t), v.Dec(), 10)
	}
	if v.IsZero() {
		return llvm.ConstNull(d.typ(t))
	}
	et := d.typ(t.ElemType())
	lanes := make([]llvm.Value, t.Lanes)
	for i := range lanes {
		lanes[i] = llvm.ConstInt(et, lane(&v, t.Elem, i), false)
	}
	return llvm.ConstVector(lanes, false)
}

func (d *directCtx) mask(m []int) llvm.Value {
	i32 := d.ctx.Int32Type()
	vals := make([]llvm.Value, len(m))
	for i, k := range m {
		if k < 0 {
			vals[i] = llvm.Undef(i32)
		} else {
			vals[i] = llvm.ConstInt(i32, uint64(k), false)
		}
	}
	return llvm.ConstVector(vals, false)
}

// resize zero-extends or truncates a scalar to another lane type.
func (d *directCtx) resize(v llvm.Value, from, to Type) llvm.Value {
	switch {
	case from.Elem < to.Elem:
		return d.b.CreateZExt(v, d.typ(to), "")
	case from.Elem > to.Elem:
		return d.b.CreateTrunc(v, d.typ(to), "")
	}
	return v
}

func (d *directCtx) emit(x *Expr) ([]llvm.Value, error) {
	if vs, ok := d.vals[x]; ok {
		return vs, nil
	}
	ops := make([]llvm.Value, len(x.Args))
	for i, a := range x.Args {
		vs, err := d.emit(a)
		if err != nil {
			return nil, err
		}
		ops[i] = vs[0]
	}
	vs, err := d.node(x, ops)
	if err != nil {
		return nil, err
	}
	d.vals[x] = vs
	return vs, nil
}

func (d *directCtx) node(x *Expr, ops []llvm.Value) ([]llvm.Value, error) {
	b := d.b
	t := x.Type
	T := d.typ(t)
	one := func(v llvm.Value) ([]llvm.Value, error) { return []llvm.Value{v}, nil }

	switch x.Op {
	case OpConst:
		return one(d.constant(t, x.Val))
	case OpUndef:
		return one(llvm.Undef(T))
	case OpArg:
		return one(d.args[x.Name])
	case OpBitcast:
		return one(b.CreateBitCast(ops[0], T, ""))
	case OpTrunc:
		return one(b.CreateTrunc(ops[0], T, ""))
	case OpZext, OpAnyExt:
		return one(b.CreateZExt(ops[0], T, ""))
	case OpSext:
		return one(b.CreateSExt(ops[0], T, ""))
	case OpAnd:
		return one(b.CreateAnd(ops[0], ops[1], ""))
	case OpOr:
		return one(b.CreateOr(ops[0], ops[1], ""))
	case OpXor:
		return one(b.CreateXor(ops[0], ops[1], ""))
	case OpAdd:
		return one(b.CreateAdd(ops[0], ops[1], ""))
	case OpSub:
		return one(b.CreateSub(ops[0], ops[1], ""))
	case OpMul:
		return one(b.CreateMul(ops[0], ops[1], ""))
	case OpShl, OpSrl, OpSra:
		return one(d.shift(x, ops))
	case OpSetCC:
		c := b.CreateICmp(intPredicates[x.Cond], ops[0], ops[1], "")
		return one(b.CreateSExt(c, T, ""))
	case OpSelect:
		if x.Args[0].Type == t {
			hi := b.CreateAnd(ops[0], ops[1], "")
			lo := b.CreateAnd(b.CreateNot(ops[0], ""), ops[2], "")
			return one(b.CreateOr(hi, lo, ""))
		}
		c := b.CreateICmp(llvm.IntNE, ops[0], llvm.ConstNull(d.typ(x.Args[0].Type)), "")
		return one(b.CreateSelect(c, ops[1], ops[2], ""))
	case OpBuildVector:
		acc := llvm.Undef(T)
		for i, a := range x.Args {
			if a.Op == OpUndef {
				continue
			}
			v := d.resize(ops[i], a.Type, t.ElemType())
			acc = b.CreateInsertElement(acc, v, llvm.ConstInt(d.ctx.Int32Type(), uint64(i), false), "")
		}
		return one(acc)
	case OpExtractElt:
		vt := x.Args[0].Type
		return one(d.resize(b.CreateExtractElement(ops[0], ops[1], ""), vt.ElemType(), t))
	case OpInsertElt:
		v := d.resize(ops[1], x.Args[1].Type, t.ElemType())
		return one(b.CreateInsertElement(ops[0], v, ops[2], ""))
	case OpScalarToVector:
		v := d.resize(ops[0], x.Args[0].Type, t.ElemType())
		return one(b.CreateInsertElement(llvm.ConstNull(T), v, llvm.ConstInt(d.ctx.Int32Type(), 0, false), ""))
	case OpShuffle:
		return one(b.CreateShuffleVector(ops[0], ops[1], d.mask(x.Mask), ""))
	case OpPackLow, OpPackHigh:
		m := packMask(t.Lanes, x.Op == OpPackHigh)
		return one(b.CreateShuffleVector(ops[0], ops[1], d.mask(m), ""))
	case OpByteShl, OpByteSrl:
		m := byteShiftMask(x.Op, x.Imm)
		return one(b.CreateShuffleVector(ops[0], llvm.ConstNull(T), d.mask(m), ""))
	case OpMergeValues:
		return ops, nil
	}
	return nil, directUnsupportedf("no direct rule for %s %s", x.Op, t)
}

func (d *directCtx) shift(x *Expr, ops []llvm.Value) llvm.Value {
	b := d.b
	t := x.Type
	build := func(amt llvm.Value) llvm.Value {
		switch x.Op {
		case OpShl:
			return b.CreateShl(ops[0], amt, "")
		case OpSrl:
			return b.CreateLShr(ops[0], amt, "")
		}
		return b.CreateAShr(ops[0], amt, "")
	}
	if n, ok := shiftImmediate(x.Args[1]); ok && n < t.Elem {
		return build(ops[1])
	}
	width := d.constant(t, splatValue(t, uint64(t.Elem)))
	inRange := b.CreateICmp(llvm.IntULT, ops[1], width, "")
	if x.Op == OpSra {
		top := d.constant(t, splatValue(t, uint64(t.Elem-1)))
		return build(b.CreateSelect(inRange, ops[1], top, ""))
	}
	return b.CreateSelect(inRange, build(ops[1]), llvm.ConstNull(d.typ(t)), "")
}
