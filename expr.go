package pxlower

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Opcode identifies the operation computed by an Expr.
type Opcode int

const (
	OpInvalid Opcode = iota

	OpUndef
	OpConst
	OpArg

	OpBitcast
	OpTrunc
	OpZext
	OpSext
	OpAnyExt

	OpAnd
	OpOr
	OpXor
	OpAdd
	OpSub
	OpMul
	OpShl
	OpSrl
	OpSra
	OpSetCC
	OpSelect

	OpBuildVector
	OpExtractElt
	OpInsertElt
	OpScalarToVector
	OpShuffle
	OpPackLow
	OpPackHigh

	OpUAddO
	OpUAddE
	OpMergeValues

	// Host fast paths.
	OpPackUS
	OpPext
	OpMovMask
	OpByteShl
	OpByteSrl

	numOpcodes
)

var opNames = [...]string{
	OpInvalid:        "invalid",
	OpUndef:          "undef",
	OpConst:          "const",
	OpArg:            "arg",
	OpBitcast:        "bitcast",
	OpTrunc:          "trunc",
	OpZext:           "zext",
	OpSext:           "sext",
	OpAnyExt:         "anyext",
	OpAnd:            "and",
	OpOr:             "or",
	OpXor:            "xor",
	OpAdd:            "add",
	OpSub:            "sub",
	OpMul:            "mul",
	OpShl:            "shl",
	OpSrl:            "srl",
	OpSra:            "sra",
	OpSetCC:          "setcc",
	OpSelect:         "select",
	OpBuildVector:    "build_vector",
	OpExtractElt:     "extract_elt",
	OpInsertElt:      "insert_elt",
	OpScalarToVector: "scalar_to_vector",
	OpShuffle:        "shuffle",
	OpPackLow:        "pack_low",
	OpPackHigh:       "pack_high",
	OpUAddO:          "uaddo",
	OpUAddE:          "uadde",
	OpMergeValues:    "merge_values",
	OpPackUS:         "packus",
	OpPext:           "pext",
	OpMovMask:        "movmask",
	OpByteShl:        "byte_shl",
	OpByteSrl:        "byte_srl",
}

func (op Opcode) String() string {
	if op >= 0 && op < numOpcodes {
		return opNames[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// ParseOpcode is the inverse of Opcode.String.
func ParseOpcode(s string) (Opcode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for op := OpUndef; op < numOpcodes; op++ {
		if opNames[op] == s {
			return op, nil
		}
	}
	return OpInvalid, fmt.Errorf("%w: unknown opcode %q", ErrUnsupportedOperation, s)
}

// Cond is an integer comparison predicate.
type Cond int

const (
	CondEQ Cond = iota
	CondNE
	CondSLT
	CondSGT
	CondSLE
	CondSGE
	CondULT
	CondUGT
	CondULE
	CondUGE
)

var condNames = [...]string{"eq", "ne", "slt", "sgt", "sle", "sge", "ult", "ugt", "ule", "uge"}

// AllConds lists every predicate.
var AllConds = []Cond{CondEQ, CondNE, CondSLT, CondSGT, CondSLE, CondSGE, CondULT, CondUGT, CondULE, CondUGE}

func (c Cond) String() string {
	if c.valid() {
		return condNames[c]
	}
	return "cond(" + strconv.Itoa(int(c)) + ")"
}

func (c Cond) valid() bool { return c >= 0 && int(c) < len(condNames) }

func ParseCond(s string) (Cond, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range condNames {
		if n == s {
			return Cond(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown predicate %q", ErrMalformedRequest, s)
}

// Expr is an immutable expression node. Nodes may be shared, so a tree is
// really a DAG; nothing mutates a node after construction.
type Expr struct {
	Op   Opcode
	Type Type
	Args []*Expr

	Val  Value  // OpConst
	Name string // OpArg
	Cond Cond   // OpSetCC
	Mask []int  // OpShuffle, -1 is undef
	Imm  int    // OpByteShl, OpByteSrl
}

// Arg is a named operand supplied by the host.
func Arg(name string, t Type) *Expr { return &Expr{Op: OpArg, Type: t, Name: name} }

func Undef(t Type) *Expr { return &Expr{Op: OpUndef, Type: t} }

// Const builds a constant whose low 64 bits are v.
func Const(t Type, v uint64) *Expr {
	var x Value
	x.SetUint64(v)
	return ConstValue(t, x)
}

// ConstValue builds a constant from the raw bits of v, truncated to t.
func ConstValue(t Type, v Value) *Expr {
	return &Expr{Op: OpConst, Type: t, Val: truncBits(v, t.Bits())}
}

// Splat builds a vector constant with every lane equal to v.
func Splat(t Type, v uint64) *Expr {
	var x Value
	for i := 0; i < t.NumLanes(); i++ {
		setLane(&x, t.Elem, i, v)
	}
	return ConstValue(t, x)
}

// Ones is the all-ones constant of t.
func Ones(t Type) *Expr {
	var x Value
	x.SetAllOne()
	return ConstValue(t, x)
}

func Zero(t Type) *Expr { return ConstValue(t, Value{}) }

// NewNode builds a node of explicit type.
func NewNode(op Opcode, t Type, args ...*Expr) *Expr {
	return &Expr{Op: op, Type: t, Args: args}
}

// Binary builds a two-operand node typed like a.
func Binary(op Opcode, a, b *Expr) *Expr { return NewNode(op, a.Type, a, b) }

// SetCC compares a and b lane-wise; true lanes are all ones.
func SetCC(c Cond, a, b *Expr) *Expr {
	return &Expr{Op: OpSetCC, Type: a.Type, Args: []*Expr{a, b}, Cond: c}
}

// Select picks bits of a where mask is set and bits of b elsewhere.
func Select(mask, a, b *Expr) *Expr { return NewNode(OpSelect, a.Type, mask, a, b) }

// Shuffle concatenates a and b and picks lanes by mask.
func Shuffle(a, b *Expr, mask []int) *Expr {
	m := append([]int(nil), mask...)
	return &Expr{Op: OpShuffle, Type: a.Type.WithLanes(len(m)), Args: []*Expr{a, b}, Mask: m}
}

// BuildVector builds t from scalars; operands wider than the lane are
// truncated.
func BuildVector(t Type, elts ...*Expr) *Expr { return NewNode(OpBuildVector, t, elts...) }

// ExtractElt yields lane idx of vec as an i8 for fields narrower than a
// byte and as the lane type otherwise.
func ExtractElt(vec, idx *Expr) *Expr {
	rt := vec.Type.ElemType()
	if rt.Elem < 8 {
		rt = I8
	}
	return NewNode(OpExtractElt, rt, vec, idx)
}

func InsertElt(vec, elt, idx *Expr) *Expr { return NewNode(OpInsertElt, vec.Type, vec, elt, idx) }

func ScalarToVector(t Type, s *Expr) *Expr { return NewNode(OpScalarToVector, t, s) }

func PackLow(a, b *Expr) *Expr  { return NewNode(OpPackLow, a.Type, a, b) }
func PackHigh(a, b *Expr) *Expr { return NewNode(OpPackHigh, a.Type, a, b) }

// UAddO adds two long integers; results are the sum and the i1 carry out.
func UAddO(a, b *Expr) *Expr { return NewNode(OpUAddO, a.Type, a, b) }

// UAddE is UAddO with an i1 carry in.
func UAddE(a, b, carry *Expr) *Expr { return NewNode(OpUAddE, a.Type, a, b, carry) }

// MergeValues groups several results; Type is the type of the first.
func MergeValues(vals ...*Expr) *Expr { return NewNode(OpMergeValues, vals[0].Type, vals...) }

// Results lists the values produced by e.
func (e *Expr) Results() []*Expr {
	if e.Op == OpMergeValues {
		return e.Args
	}
	return []*Expr{e}
}

// ResultTypes lists the types of the values produced by e.
func (e *Expr) ResultTypes() []Type {
	switch e.Op {
	case OpMergeValues:
		ts := make([]Type, len(e.Args))
		for i, a := range e.Args {
			ts[i] = a.Type
		}
		return ts
	case OpUAddO, OpUAddE:
		return []Type{e.Type, I1}
	}
	return []Type{e.Type}
}

// IsConst reports whether e is a constant and returns its bits.
func (e *Expr) IsConst() (Value, bool) {
	if e.Op != OpConst {
		return Value{}, false
	}
	return e.Val, true
}

// withArgs returns a copy of e with new operands.
func (e *Expr) withArgs(args []*Expr) *Expr {
	c := *e
	c.Args = args
	return &c
}

func (e *Expr) String() string {
	var sb strings.Builder
	e.Dump(&sb)
	return strings.TrimRight(sb.String(), "\n")
}

// Dump writes e as a numbered listing, one line per distinct node.
func (e *Expr) Dump(w io.Writer) {
	ids := map[*Expr]int{}
	var walk func(n *Expr) int
	walk = func(n *Expr) int {
		if id, ok := ids[n]; ok {
			return id
		}
		refs := make([]string, len(n.Args))
		for i, a := range n.Args {
			refs[i] = "t" + strconv.Itoa(walk(a))
		}
		id := len(ids)
		ids[n] = id
		fmt.Fprintf(w, "t%d: %s = %s", id, n.Type, n.Op)
		switch n.Op {
		case OpConst:
			fmt.Fprintf(w, " %s", constString(n.Type, n.Val))
		case OpArg:
			fmt.Fprintf(w, " %s", n.Name)
		case OpSetCC:
			fmt.Fprintf(w, " %s", n.Cond)
		case OpByteShl, OpByteSrl:
			fmt.Fprintf(w, " %d", n.Imm)
		}
		if len(refs) > 0 {
			fmt.Fprintf(w, " %s", strings.Join(refs, ", "))
		}
		if n.Op == OpShuffle {
			fmt.Fprintf(w, " %v", n.Mask)
		}
		fmt.Fprintln(w)
		return id
	}
	walk(e)
}

func constString(t Type, v Value) string {
	if !t.IsVector() || t.Elem > 64 {
		return v.Hex()
	}
	if lane, ok := splatLane(t, v); ok {
		return fmt.Sprintf("splat(%#x)", lane)
	}
	return v.Hex()
}

func splatLane(t Type, v Value) (uint64, bool) {
	first := lane(&v, t.Elem, 0)
	for i := 1; i < t.NumLanes(); i++ {
		if lane(&v, t.Elem, i) != first {
			return 0, false
		}
	}
	return first, true
}
