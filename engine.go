package pxlower

import (
	"fmt"
	"sort"
)

// StrategyKind names the family of rewrite that legalizes an (op, type).
type StrategyKind int

const (
	StrategyNone StrategyKind = iota
	StrategyPassThrough
	StrategyFormula
	StrategyPromote
	StrategyCustom
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyPassThrough:
		return "pass-through"
	case StrategyFormula:
		return "formula"
	case StrategyPromote:
		return "promote"
	case StrategyCustom:
		return "custom"
	}
	return "none"
}

// StrategyInfo describes one dispatch table entry.
type StrategyInfo struct {
	Op   Opcode
	Type Type
	Kind StrategyKind
	Name string
}

func (s StrategyInfo) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", s.Op, s.Type, s.Kind, s.Name)
}

type lowerFunc func(x *Expr) (*Expr, error)

type strategy struct {
	info StrategyInfo
	fn   lowerFunc
}

type tableKey struct {
	op  Opcode
	typ Type
}

// Options configures an Engine.
type Options struct {
	Features Features
}

// Engine lowers operations on narrow-field vectors and long integers into
// native-width operations. Everything is built by NewEngine and never
// modified afterwards, so an Engine may be shared between goroutines.
type Engine struct {
	opts     Options
	carriers carrierTable
	b        builder
	table    map[tableKey]strategy
	types    map[Type]bool
}

// NewEngine builds the carrier table, the mask table and the dispatch table.
func NewEngine(opts Options) *Engine {
	en := &Engine{
		opts:     opts,
		carriers: newCarrierTable(),
		b:        builder{masks: newMaskTable()},
		table:    map[tableKey]strategy{},
		types:    map[Type]bool{},
	}
	// Priority order: the first registration of a key wins.
	en.registerPassThrough()
	en.registerFormulas()
	en.registerPromotions()
	en.registerCustom()
	return en
}

// Features reports the host features the engine was built for.
func (en *Engine) Features() Features { return en.opts.Features }

func (en *Engine) register(kind StrategyKind, op Opcode, t Type, name string, fn lowerFunc) {
	k := tableKey{op, t}
	en.types[t] = true
	if _, ok := en.table[k]; ok {
		return
	}
	en.table[k] = strategy{info: StrategyInfo{Op: op, Type: t, Kind: kind, Name: name}, fn: fn}
}

func (en *Engine) registerCustom() {
	for _, fw := range []int{1, 2, 4} {
		for _, t := range narrowTypes(fw) {
			access := "i16-lane"
			if fw == 1 && t.Bits() <= 64 {
				access = "bit"
			}
			build := "byte-groups"
			if fw == 1 {
				build = "insert-chain"
			}
			en.register(StrategyCustom, OpExtractElt, t, access, en.lowerExtract)
			en.register(StrategyCustom, OpInsertElt, t, access, en.lowerInsert)
			en.register(StrategyCustom, OpBuildVector, t, build, en.lowerBuild)
			en.register(StrategyCustom, OpScalarToVector, t, "field-zero", en.lowerScalarToVector)
			en.register(StrategyCustom, OpPackLow, t, en.packName(t), en.lowerPack)
			en.register(StrategyCustom, OpPackHigh, t, en.packName(t), en.lowerPack)
		}
	}
	for _, t := range narrowTypes(8) {
		en.register(StrategyCustom, OpPackLow, t, en.packName(t), en.lowerPack)
		en.register(StrategyCustom, OpPackHigh, t, en.packName(t), en.lowerPack)
	}
	for _, t := range longTypes {
		chain := en.carryChainName(t)
		en.register(StrategyCustom, OpUAddO, t, chain, en.lowerAddChain)
		en.register(StrategyCustom, OpUAddE, t, chain, en.lowerAddChain)
		en.register(StrategyCustom, OpAdd, t, chain, en.lowerLongAdd)
		en.register(StrategyCustom, OpShl, t, "word-shift", en.lowerWideShift)
		en.register(StrategyCustom, OpSrl, t, "word-shift", en.lowerWideShift)
	}
}

// narrowTypes lists every v<N>i<fw> in a supported carrier.
func narrowTypes(fw int) []Type {
	var ts []Type
	for _, cw := range carrierWidths {
		if cw/fw >= 2 {
			ts = append(ts, Vec(cw/fw, fw))
		}
	}
	return ts
}

var longTypes = []Type{I128, I256}

// Strategy returns the table entry for op on t.
func (en *Engine) Strategy(op Opcode, t Type) (StrategyInfo, bool) {
	s, ok := en.table[tableKey{op, t}]
	return s.info, ok
}

// Table lists every entry, ordered by type width, type and opcode.
func (en *Engine) Table() []StrategyInfo {
	out := make([]StrategyInfo, 0, len(en.table))
	for _, s := range en.table {
		out = append(out, s.info)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Type.Bits() != b.Type.Bits() {
			return a.Type.Bits() < b.Type.Bits()
		}
		if a.Type.Elem != b.Type.Elem {
			return a.Type.Elem < b.Type.Elem
		}
		if a.Type.Lanes != b.Type.Lanes {
			return a.Type.Lanes < b.Type.Lanes
		}
		return a.Op < b.Op
	})
	return out
}

// keyType is the type a node is dispatched on: the vector operand for
// extract, the result type otherwise.
func keyType(x *Expr) Type {
	if x.Op == OpExtractElt && len(x.Args) > 0 {
		return x.Args[0].Type
	}
	return x.Type
}

// Lower replaces x by an equivalent tree of native-width operations. The
// result has the same result types as x.
func (en *Engine) Lower(x *Expr) (*Expr, error) {
	t := keyType(x)
	s, ok := en.table[tableKey{x.Op, t}]
	if !ok {
		return nil, en.missing(x.Op, t)
	}
	if err := checkShape(x); err != nil {
		return nil, err
	}
	out, err := s.fn(x)
	if err != nil {
		return nil, err
	}
	Logger().Debug("pxlower: lowered", "op", x.Op, "type", t, "strategy", s.info.Kind, "name", s.info.Name)
	return out, nil
}

func (en *Engine) missing(op Opcode, t Type) error {
	if !t.IsValid() || !isCarrierWidth(t.Bits()) {
		return unsupportedTypef(op, t, "total width %d is not 32, 64, 128 or 256", t.Bits())
	}
	if !en.types[t] {
		return unsupportedTypef(op, t, "no strategy for %d-bit fields", t.Elem)
	}
	return unsupportedOpf(op, t, "no strategy registered")
}

var binaryOps = map[Opcode]bool{
	OpAnd: true, OpOr: true, OpXor: true,
	OpAdd: true, OpSub: true, OpMul: true,
	OpShl: true, OpSrl: true, OpSra: true,
	OpSetCC: true, OpPackLow: true, OpPackHigh: true, OpUAddO: true,
}

// checkShape rejects operand counts and operand types that do not fit op.
func checkShape(x *Expr) error {
	argc := func(n int) error {
		if len(x.Args) != n {
			return malformedf(x.Op, x.Type, "want %d operands, have %d", n, len(x.Args))
		}
		return nil
	}
	switch {
	case binaryOps[x.Op]:
		if err := argc(2); err != nil {
			return err
		}
		for i, a := range x.Args {
			if a.Type != x.Type {
				return malformedf(x.Op, x.Type, "operand %d has type %s", i, a.Type)
			}
		}
	case x.Op == OpUAddE:
		if err := argc(3); err != nil {
			return err
		}
		if x.Args[0].Type != x.Type || x.Args[1].Type != x.Type {
			return malformedf(x.Op, x.Type, "operand types %s, %s", x.Args[0].Type, x.Args[1].Type)
		}
		if x.Args[2].Type.IsVector() {
			return malformedf(x.Op, x.Type, "carry in must be a scalar, have %s", x.Args[2].Type)
		}
	case x.Op == OpInsertElt:
		if err := argc(3); err != nil {
			return err
		}
		if x.Args[0].Type != x.Type || x.Args[1].Type.IsVector() || x.Args[2].Type.IsVector() {
			return malformedf(x.Op, x.Type, "want vector, scalar, index")
		}
	case x.Op == OpExtractElt:
		if err := argc(2); err != nil {
			return err
		}
		if x.Args[1].Type.IsVector() {
			return malformedf(x.Op, x.Type, "index must be a scalar")
		}
	case x.Op == OpScalarToVector:
		if err := argc(1); err != nil {
			return err
		}
		if x.Args[0].Type.IsVector() {
			return malformedf(x.Op, x.Type, "operand must be a scalar")
		}
	case x.Op == OpBuildVector:
		if err := argc(x.Type.NumLanes()); err != nil {
			return err
		}
		for i, a := range x.Args {
			if a.Type.IsVector() {
				return malformedf(x.Op, x.Type, "operand %d is a vector", i)
			}
		}
	}
	return nil
}

// LowerTree legalizes every node of root that has a table entry, bottom
// up, until only native operations remain. Nodes without an entry are
// kept with their legalized operands.
func (en *Engine) LowerTree(root *Expr) (*Expr, error) {
	done := map[*Expr]*Expr{}
	var walk func(x *Expr) (*Expr, error)
	walk = func(x *Expr) (*Expr, error) {
		if r, ok := done[x]; ok {
			return r, nil
		}
		args := make([]*Expr, len(x.Args))
		changed := false
		for i, a := range x.Args {
			r, err := walk(a)
			if err != nil {
				return nil, err
			}
			args[i] = r
			changed = changed || r != a
		}
		n := x
		if changed {
			n = x.withArgs(args)
		}
		if _, ok := en.table[tableKey{n.Op, keyType(n)}]; ok {
			lowered, err := en.Lower(n)
			if err != nil {
				return nil, err
			}
			// The replacement may hold nodes that still need legalizing,
			// such as the byte multiply produced by promoting v32i4 MUL.
			done[n] = n
			if lowered, err = walk(lowered); err != nil {
				return nil, err
			}
			n = lowered
		}
		done[x] = n
		done[n] = n
		return n, nil
	}
	return walk(root)
}
