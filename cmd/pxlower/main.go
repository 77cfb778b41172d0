package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/xgo-dev/pxlower"
	"golang.org/x/sync/errgroup"
)

type failItem struct {
	Op       string `json:"op"`
	Type     string `json:"type"`
	Strategy string `json:"strategy"`
	Trial    int    `json:"trial"`
	Err      string `json:"err"`
}

type runReport struct {
	Features string     `json:"features"`
	Goarch   string     `json:"goarch"`
	Entries  int        `json:"entries"`
	Trials   int        `json:"trials"`
	Success  int        `json:"success"`
	Failed   int        `json:"failed"`
	Duration string     `json:"duration"`
	Fails    []failItem `json:"fails,omitempty"`
}

type matrixReport struct {
	Targets      []runReport `json:"targets"`
	TotalTargets int         `json:"total_targets"`
	TotalEntries int         `json:"total_entries"`
	Success      int         `json:"success"`
	Failed       int         `json:"failed"`
}

// matrixFeatures are the feature sets verify --matrix walks through.
var matrixFeatures = []string{"", "+sse2", "+sse2,+avx", "+sse2,+avx,+avx2", "+sse2,+avx,+avx2,+bmi2,+64bit"}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pxlower: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var features string
	root := &cobra.Command{
		Use:           "pxlower",
		Short:         "Lower narrow-field vector and long-integer operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&features, "features", "host", `target features, e.g. "+sse2,+avx2" or "host"`)

	engine := func() (*pxlower.Engine, error) {
		f, err := pxlower.ParseFeatures(features)
		if err != nil {
			return nil, err
		}
		return pxlower.NewEngine(pxlower.Options{Features: f}), nil
	}

	root.AddCommand(newLowerCmd(engine), newVerifyCmd(&features), newTableCmd(engine))
	return root
}

func newLowerCmd(engine func() (*pxlower.Engine, error)) *cobra.Command {
	var (
		opName, typeName, pred, emit, triple, name string
		amount                                      uint64
		seed                                        uint64
	)
	cmd := &cobra.Command{
		Use:   "lower",
		Short: "Lower one operation and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			en, err := engine()
			if err != nil {
				return err
			}
			x, err := buildRequest(opName, typeName, pred, amount, seed)
			if err != nil {
				return err
			}
			lowered, err := en.LowerTree(x)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch emit {
			case "tree":
				lowered.Dump(out)
				return nil
			case "ll":
				ir, err := pxlower.EmitLLVM(lowered, pxlower.EmitOptions{
					Name:         name,
					TargetTriple: triple,
					Features:     en.Features(),
				})
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, ir)
				return err
			}
			return fmt.Errorf("unknown --emit %q (want tree or ll)", emit)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&opName, "op", "", "operation, e.g. add, setcc, pack_low")
	fl.StringVar(&typeName, "type", "", "operand type, e.g. v64i2 or i128")
	fl.StringVar(&pred, "pred", "", "predicate for setcc (eq, slt, ...)")
	fl.Uint64Var(&amount, "amount", 1, "constant shift amount for long integer shifts")
	fl.Uint64Var(&seed, "seed", 1, "seed for the undef lanes of build_vector")
	fl.StringVar(&emit, "emit", "tree", "output form: tree or ll")
	fl.StringVar(&triple, "triple", "", "target triple for --emit ll")
	fl.StringVar(&name, "name", "", "function name for --emit ll")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// buildRequest makes the node for one lowering request over named
// arguments.
func buildRequest(opName, typeName, pred string, amount, seed uint64) (*pxlower.Expr, error) {
	op, err := pxlower.ParseOpcode(opName)
	if err != nil {
		return nil, err
	}
	t, err := pxlower.ParseType(typeName)
	if err != nil {
		return nil, err
	}
	a, b := pxlower.Arg("a", t), pxlower.Arg("b", t)
	switch {
	case op == pxlower.OpSetCC:
		if pred == "" {
			return nil, fmt.Errorf("%w: setcc needs --pred", pxlower.ErrMalformedRequest)
		}
		c, err := pxlower.ParseCond(pred)
		if err != nil {
			return nil, err
		}
		return pxlower.SetCC(c, a, b), nil
	case pred != "":
		return nil, fmt.Errorf("%w: --pred only applies to setcc", pxlower.ErrMalformedRequest)
	case t.IsLong() && lo.Contains([]pxlower.Opcode{pxlower.OpShl, pxlower.OpSrl, pxlower.OpSra}, op):
		return pxlower.Binary(op, a, pxlower.Const(t, amount)), nil
	}
	x, _ := pxlower.Sample(op, t, rand.New(rand.NewPCG(seed, seed)))
	return x, nil
}

func newVerifyCmd(features *string) *cobra.Command {
	var (
		types, ops, reportOut string
		trials, jobs          int
		seed                  uint64
		matrix                bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every lowering against the reference evaluator on random inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sets := []string{*features}
			if matrix {
				sets = matrixFeatures
			}
			reports := make([]runReport, 0, len(sets))
			for _, s := range sets {
				f, err := pxlower.ParseFeatures(s)
				if err != nil {
					return err
				}
				rep, err := runVerify(cmd.Context(), f, splitCSV(types), splitCSV(ops), trials, jobs, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] entries=%d success=%d failed=%d (%s)\n",
					rep.Features, rep.Entries, rep.Success, rep.Failed, rep.Duration)
				for _, fi := range rep.Fails {
					fmt.Fprintf(cmd.ErrOrStderr(), "  FAIL %s %s (%s) trial %d: %s\n", fi.Op, fi.Type, fi.Strategy, fi.Trial, fi.Err)
				}
				reports = append(reports, rep)
			}

			var payload any = reports[0]
			if len(reports) > 1 {
				mr := matrixReport{Targets: reports, TotalTargets: len(reports)}
				for _, r := range reports {
					mr.TotalEntries += r.Entries
					mr.Success += r.Success
					mr.Failed += r.Failed
				}
				payload = mr
			}
			if err := writeReport(reportOut, payload); err != nil {
				return err
			}
			failed := lo.SumBy(reports, func(r runReport) int { return r.Failed })
			if failed != 0 {
				return fmt.Errorf("%d table entries failed verification", failed)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&types, "type", "", "comma-separated types to verify (default all)")
	fl.StringVar(&ops, "op", "", "comma-separated operations to verify (default all)")
	fl.IntVar(&trials, "trials", 64, "random inputs per table entry")
	fl.IntVar(&jobs, "jobs", runtime.GOMAXPROCS(0), "parallel workers")
	fl.Uint64Var(&seed, "seed", 1, "random seed")
	fl.BoolVar(&matrix, "matrix", false, "verify under a ladder of feature sets")
	fl.StringVar(&reportOut, "report", "", "optional report json path")
	return cmd
}

func runVerify(ctx context.Context, f pxlower.Features, types, ops []string, trials, jobs int, seed uint64) (runReport, error) {
	start := time.Now()
	en := pxlower.NewEngine(pxlower.Options{Features: f})
	entries := lo.Filter(en.Table(), func(s pxlower.StrategyInfo, _ int) bool {
		return (len(types) == 0 || lo.Contains(types, s.Type.String())) &&
			(len(ops) == 0 || lo.Contains(ops, s.Op.String()))
	})
	if len(entries) == 0 {
		return runReport{}, fmt.Errorf("no table entries match --type %q --op %q",
			strings.Join(types, ","), strings.Join(ops, ","))
	}

	fails := make([]*failItem, len(entries))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, s := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			for trial := 0; trial < trials; trial++ {
				x, env := pxlower.Sample(s.Op, s.Type, rng)
				if err := en.Check(x, env); err != nil {
					fails[i] = &failItem{
						Op: s.Op.String(), Type: s.Type.String(), Strategy: s.Name,
						Trial: trial, Err: err.Error(),
					}
					return nil
				}
			}
			done.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runReport{}, err
	}

	rep := runReport{
		Features: f.String(),
		Goarch:   runtime.GOARCH,
		Entries:  len(entries),
		Trials:   trials,
		Success:  int(done.Load()),
		Fails: lo.FilterMap(fails, func(fi *failItem, _ int) (failItem, bool) {
			if fi == nil {
				return failItem{}, false
			}
			return *fi, true
		}),
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	rep.Failed = len(rep.Fails)
	if rep.Features == "" {
		rep.Features = "baseline"
	}
	return rep, nil
}

func newTableCmd(engine func() (*pxlower.Engine, error)) *cobra.Command {
	var asJSON bool
	var kind string
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the dispatch table for the selected features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			en, err := engine()
			if err != nil {
				return err
			}
			entries := en.Table()
			if kind != "" {
				entries = lo.Filter(entries, func(s pxlower.StrategyInfo, _ int) bool {
					return s.Kind.String() == kind
				})
			}
			out := cmd.OutOrStdout()
			if asJSON {
				type row struct {
					Op       string `json:"op"`
					Type     string `json:"type"`
					Kind     string `json:"kind"`
					Strategy string `json:"strategy"`
				}
				rows := lo.Map(entries, func(s pxlower.StrategyInfo, _ int) row {
					return row{s.Op.String(), s.Type.String(), s.Kind.String(), s.Name}
				})
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			for _, s := range entries {
				fmt.Fprintln(out, s)
			}
			counts := lo.CountValuesBy(entries, func(s pxlower.StrategyInfo) string { return s.Kind.String() })
			keys := lo.Keys(counts)
			sort.Strings(keys)
			fmt.Fprintf(out, "# %d entries:", len(entries))
			for _, k := range keys {
				fmt.Fprintf(out, " %s=%d", k, counts[k])
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON rows")
	cmd.Flags().StringVar(&kind, "kind", "", "only entries of this strategy kind")
	return cmd
}

func writeReport(path string, payload any) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

func splitCSV(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
}
