package pxlower

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EmitOptions controls LLVM IR output.
type EmitOptions struct {
	// Name of the emitted function; "lowered" when empty.
	Name         string
	TargetTriple string
	// Features becomes the function's "target-features" attribute.
	Features Features
}

// EmitLLVM renders root as an LLVM IR module with a single function. The
// parameters are the Args of root in order of first appearance; a node
// with two results returns them as a struct.
func EmitLLVM(root *Expr, opts EmitOptions) (string, error) {
	name := opts.Name
	if name == "" {
		name = "lowered"
	}
	params, err := collectArgs(root)
	if err != nil {
		return "", err
	}

	var body strings.Builder
	c := &emitCtx{b: &body, vals: map[*Expr][]string{}, declares: map[string]bool{}}
	if _, err := c.emit(root); err != nil {
		return "", err
	}
	ret, err := c.emitReturn(root)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("; ModuleID = 'pxlower'\n")
	if opts.TargetTriple != "" {
		fmt.Fprintf(&b, "target triple = %q\n", opts.TargetTriple)
	}
	b.WriteString("\n")
	decls := make([]string, 0, len(c.declares))
	for d := range c.declares {
		decls = append(decls, d)
	}
	sort.Strings(decls)
	for _, d := range decls {
		b.WriteString(d + "\n")
	}
	if len(decls) > 0 {
		b.WriteString("\n")
	}

	tf := opts.Features.TargetFeatures()
	fmt.Fprintf(&b, "define %s %s(", ret, llvmGlobal(name))
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", p.Type.LLVM(), llvmLocal(p.Name))
	}
	b.WriteString(")")
	if tf != "" {
		b.WriteString(" #0")
	}
	b.WriteString(" {\nentry:\n")
	b.WriteString(body.String())
	b.WriteString("}\n")
	if tf != "" {
		fmt.Fprintf(&b, "\nattributes #0 = { \"target-features\"=%q }\n", tf)
	}
	return b.String(), nil
}

func collectArgs(root *Expr) ([]*Expr, error) {
	var out []*Expr
	seen := map[*Expr]bool{}
	byName := map[string]*Expr{}
	var walk func(x *Expr) error
	walk = func(x *Expr) error {
		if seen[x] {
			return nil
		}
		seen[x] = true
		if x.Op == OpArg {
			if prev, ok := byName[x.Name]; ok {
				if prev.Type != x.Type {
					return fmt.Errorf("argument %q used as %s and %s", x.Name, prev.Type, x.Type)
				}
				return nil
			}
			byName[x.Name] = x
			out = append(out, x)
			return nil
		}
		for _, a := range x.Args {
			if err := walk(a); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

func llvmGlobal(name string) string { return "@" + llvmIdent(name) }
func llvmLocal(name string) string  { return "%" + llvmIdent(name) }

func llvmIdent(name string) string {
	for i, r := range name {
		ok := r == '_' || r == '.' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
		if !ok {
			return strconv.Quote(name)
		}
	}
	if name == "" {
		return `""`
	}
	return name
}

type emitCtx struct {
	b        *strings.Builder
	tmp      int
	vals     map[*Expr][]string
	declares map[string]bool
}

func (c *emitCtx) newTmp() string {
	c.tmp++
	return "t" + strconv.Itoa(c.tmp)
}

func (c *emitCtx) declare(d string) { c.declares[d] = true }

// inst writes "%tN = <text>" and returns %tN.
func (c *emitCtx) inst(format string, args ...any) string {
	t := c.newTmp()
	fmt.Fprintf(c.b, "  %%%s = %s\n", t, fmt.Sprintf(format, args...))
	return "%" + t
}

func (c *emitCtx) emitReturn(root *Expr) (string, error) {
	vs := c.vals[root]
	ts := root.ResultTypes()
	if len(ts) == 1 {
		fmt.Fprintf(c.b, "  ret %s %s\n", ts[0].LLVM(), vs[0])
		return ts[0].LLVM(), nil
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.LLVM()
	}
	st := "{ " + strings.Join(parts, ", ") + " }"
	agg := "undef"
	for i, t := range ts {
		agg = c.inst("insertvalue %s %s, %s %s, %d", st, agg, t.LLVM(), vs[i], i)
	}
	fmt.Fprintf(c.b, "  ret %s %s\n", st, agg)
	return st, nil
}

func (c *emitCtx) val(x *Expr) (string, error) {
	vs, err := c.emit(x)
	if err != nil {
		return "", err
	}
	return vs[0], nil
}

func (c *emitCtx) emit(x *Expr) ([]string, error) {
	if vs, ok := c.vals[x]; ok {
		return vs, nil
	}
	ops := make([]string, len(x.Args))
	for i, a := range x.Args {
		v, err := c.val(a)
		if err != nil {
			return nil, err
		}
		ops[i] = v
	}
	vs, err := c.emitNode(x, ops)
	if err != nil {
		return nil, err
	}
	c.vals[x] = vs
	return vs, nil
}

var castOps = map[Opcode]string{OpTrunc: "trunc", OpZext: "zext", OpAnyExt: "zext", OpSext: "sext"}

var binOps = map[Opcode]string{
	OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpAdd: "add", OpSub: "sub", OpMul: "mul",
	OpShl: "shl", OpSrl: "lshr", OpSra: "ashr",
}

func (c *emitCtx) emitNode(x *Expr, ops []string) ([]string, error) {
	t := x.Type
	T := t.LLVM()
	one := func(s string) ([]string, error) { return []string{s}, nil }
	argT := func(i int) string { return x.Args[i].Type.LLVM() }

	switch x.Op {
	case OpConst:
		return one(constText(t, x.Val))
	case OpUndef:
		return one("undef")
	case OpArg:
		// Args sharing a name are one parameter.
		return one(llvmLocal(x.Name))

	case OpBitcast:
		return one(c.inst("bitcast %s %s to %s", argT(0), ops[0], T))

	case OpTrunc, OpZext, OpSext, OpAnyExt:
		return one(c.inst("%s %s %s to %s", castOps[x.Op], argT(0), ops[0], T))

	case OpAnd, OpOr, OpXor, OpAdd, OpSub, OpMul:
		return one(c.inst("%s %s %s, %s", binOps[x.Op], T, ops[0], ops[1]))

	case OpShl, OpSrl, OpSra:
		return one(c.emitShift(x, ops))

	case OpSetCC:
		cmp := c.inst("icmp %s %s %s, %s", x.Cond, T, ops[0], ops[1])
		return one(c.inst("sext %s %s to %s", boolType(t), cmp, T))

	case OpSelect:
		if x.Args[0].Type == t {
			hi := c.inst("and %s %s, %s", T, ops[0], ops[1])
			nm := c.inst("xor %s %s, %s", T, ops[0], constText(t, allOnes()))
			lo := c.inst("and %s %s, %s", T, nm, ops[2])
			return one(c.inst("or %s %s, %s", T, hi, lo))
		}
		cond := c.inst("icmp ne %s %s, zeroinitializer", argT(0), ops[0])
		return one(c.inst("select %s %s, %s %s, %s %s", boolType(t), cond, T, ops[1], T, ops[2]))

	case OpBuildVector:
		acc := "undef"
		et := t.ElemType()
		for i, a := range x.Args {
			if a.Op == OpUndef {
				continue
			}
			v := c.coerce(ops[i], a.Type, et)
			acc = c.inst("insertelement %s %s, %s %s, i32 %d", T, acc, et.LLVM(), v, i)
		}
		if acc == "undef" {
			return one("zeroinitializer")
		}
		return one(acc)

	case OpExtractElt:
		vt := x.Args[0].Type
		r := c.inst("extractelement %s %s, %s %s", vt.LLVM(), ops[0], argT(1), ops[1])
		return one(c.coerce(r, vt.ElemType(), t))

	case OpInsertElt:
		et := t.ElemType()
		v := c.coerce(ops[1], x.Args[1].Type, et)
		return one(c.inst("insertelement %s %s, %s %s, %s %s", T, ops[0], et.LLVM(), v, argT(2), ops[2]))

	case OpScalarToVector:
		et := t.ElemType()
		v := c.coerce(ops[0], x.Args[0].Type, et)
		return one(c.inst("insertelement %s zeroinitializer, %s %s, i32 0", T, et.LLVM(), v))

	case OpShuffle:
		return one(c.inst("shufflevector %s %s, %s %s, %s", argT(0), ops[0], argT(1), ops[1], maskText(x.Mask)))

	case OpPackLow, OpPackHigh:
		mask := packMask(t.Lanes, x.Op == OpPackHigh)
		return one(c.inst("shufflevector %s %s, %s %s, %s", T, ops[0], T, ops[1], maskText(mask)))

	case OpUAddO, OpUAddE:
		fn := fmt.Sprintf("@llvm.uadd.with.overflow.%s", T)
		st := fmt.Sprintf("{ %s, i1 }", T)
		c.declare(fmt.Sprintf("declare %s %s(%s, %s)", st, fn, T, T))
		r := c.inst("call %s %s(%s %s, %s %s)", st, fn, T, ops[0], T, ops[1])
		sum := c.inst("extractvalue %s %s, 0", st, r)
		carry := c.inst("extractvalue %s %s, 1", st, r)
		if x.Op == OpUAddE {
			cin := c.coerce(ops[2], x.Args[2].Type, t)
			r2 := c.inst("call %s %s(%s %s, %s %s)", st, fn, T, sum, T, cin)
			sum = c.inst("extractvalue %s %s, 0", st, r2)
			c2 := c.inst("extractvalue %s %s, 1", st, r2)
			carry = c.inst("or i1 %s, %s", carry, c2)
		}
		return []string{sum, carry}, nil

	case OpMergeValues:
		return ops, nil

	case OpPackUS:
		if x.Args[0].Type != V8I16 {
			return nil, fmt.Errorf("emit: packus on %s", x.Args[0].Type)
		}
		c.declare("declare <16 x i8> @llvm.x86.sse2.packuswb.128(<8 x i16>, <8 x i16>)")
		return one(c.inst("call <16 x i8> @llvm.x86.sse2.packuswb.128(<8 x i16> %s, <8 x i16> %s)", ops[0], ops[1]))

	case OpPext:
		c.declare("declare i64 @llvm.x86.bmi.pext.64(i64, i64)")
		return one(c.inst("call i64 @llvm.x86.bmi.pext.64(i64 %s, i64 %s)", ops[0], ops[1]))

	case OpMovMask:
		var fn, ft string
		switch x.Args[0].Type {
		case V2I64:
			fn, ft = "@llvm.x86.sse2.movmsk.pd", "<2 x double>"
		case V4I64:
			fn, ft = "@llvm.x86.avx.movmsk.pd.256", "<4 x double>"
		default:
			return nil, fmt.Errorf("emit: movmask on %s", x.Args[0].Type)
		}
		c.declare(fmt.Sprintf("declare i32 %s(%s)", fn, ft))
		d := c.inst("bitcast %s %s to %s", argT(0), ops[0], ft)
		return one(c.inst("call i32 %s(%s %s)", fn, ft, d))

	case OpByteShl, OpByteSrl:
		mask := byteShiftMask(x.Op, x.Imm)
		return one(c.inst("shufflevector <16 x i8> %s, <16 x i8> zeroinitializer, %s", ops[0], maskText(mask)))
	}
	return nil, fmt.Errorf("emit: no rule for %s %s", x.Op, t)
}

// emitShift keeps LLVM's poison out of over-wide shifts: the amount is
// compared against the lane width unless it is a constant known in range.
func (c *emitCtx) emitShift(x *Expr, ops []string) string {
	t := x.Type
	T := t.LLVM()
	op := binOps[x.Op]
	if n, ok := shiftImmediate(x.Args[1]); ok && n < t.Elem {
		return c.inst("%s %s %s, %s", op, T, ops[0], ops[1])
	}
	width := constText(t, splatValue(t, uint64(t.Elem)))
	ok := c.inst("icmp ult %s %s, %s", T, ops[1], width)
	if x.Op == OpSra {
		top := constText(t, splatValue(t, uint64(t.Elem-1)))
		amt := c.inst("select %s %s, %s %s, %s %s", boolType(t), ok, T, ops[1], T, top)
		return c.inst("ashr %s %s, %s", T, ops[0], amt)
	}
	r := c.inst("%s %s %s, %s", op, T, ops[0], ops[1])
	return c.inst("select %s %s, %s %s, %s zeroinitializer", boolType(t), ok, T, r, T)
}

// coerce resizes a scalar operand to the lane type an instruction needs.
func (c *emitCtx) coerce(v string, from, to Type) string {
	switch {
	case from.Elem < to.Elem:
		return c.inst("zext %s %s to %s", from.LLVM(), v, to.LLVM())
	case from.Elem > to.Elem:
		return c.inst("trunc %s %s to %s", from.LLVM(), v, to.LLVM())
	}
	return v
}

func boolType(t Type) string {
	if t.IsVector() {
		return fmt.Sprintf("<%d x i1>", t.Lanes)
	}
	return "i1"
}

func allOnes() Value {
	var v Value
	v.SetAllOne()
	return v
}

func splatValue(t Type, x uint64) Value {
	if !t.IsVector() {
		var v Value
		v.SetUint64(x)
		return v
	}
	return Splat(t, x).Val
}

func maskText(mask []int) string {
	parts := make([]string, len(mask))
	for i, m := range mask {
		if m < 0 {
			parts[i] = "i32 undef"
		} else {
			parts[i] = "i32 " + strconv.Itoa(m)
		}
	}
	return fmt.Sprintf("<%d x i32> <%s>", len(mask), strings.Join(parts, ", "))
}

// constText prints v as an LLVM constant of type t using signed decimals.
func constText(t Type, v Value) string {
	v = truncBits(v, t.Bits())
	if v.IsZero() && t.IsVector() {
		return "zeroinitializer"
	}
	if !t.IsVector() {
		return signedDecimal(v, t.Elem)
	}
	parts := make([]string, t.Lanes)
	et := t.ElemType().LLVM()
	for i := range parts {
		parts[i] = et + " " + strconv.FormatInt(sext64(lane(&v, t.Elem, i), t.Elem), 10)
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

func signedDecimal(v Value, bits int) string {
	if bits <= 64 {
		return strconv.FormatInt(sext64(v.Uint64(), bits), 10)
	}
	s := signExtend(v, bits)
	if s.Sign() >= 0 {
		return s.Dec()
	}
	s.Neg(&s)
	return "-" + s.Dec()
}

// packMask picks the even (or odd) lanes of a two-operand concatenation.
func packMask(lanes int, odd bool) []int {
	m := make([]int, lanes)
	for i := range m {
		m[i] = 2 * i
		if odd {
			m[i]++
		}
	}
	return m
}

// byteShiftMask shuffles a 16-byte vector against zero; index 16 is a
// zero byte.
func byteShiftMask(op Opcode, n int) []int {
	m := make([]int, 16)
	for i := range m {
		j := i - n
		if op == OpByteSrl {
			j = i + n
		}
		if j < 0 || j >= 16 {
			j = 16
		}
		m[i] = j
	}
	return m
}
