package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	guda "github.com/LynnColeArt/guda-skipln"
)

func benchCmd() *cli.Command {
	var (
		wf       workloadFlags
		iters    int
		outDir   string
		counters bool
	)

	flags := wf.flags(0, 256)
	flags = append(flags,
		&cli.IntFlag{Name: "iters", Aliases: []string{"n"}, Usage: "timed launches per width", Value: 100, Destination: &iters},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "directory for the session log", Value: "benchmark_results", Destination: &outDir},
		&cli.BoolFlag{Name: "counters", Usage: "collect hardware performance counters (Linux perf events)", Destination: &counters},
	)

	return &cli.Command{
		Name:      "bench",
		Usage:     "Time the kernel over a set of row widths and log a benchmark session",
		ArgsUsage: "[ld...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			wf.apply(c, cfg)
			if cfg.Iterations != nil && !c.IsSet("iters") {
				iters = *cfg.Iterations
			}
			if cfg.BenchDir != "" && !c.IsSet("out") {
				outDir = cfg.BenchDir
			}
			if iters <= 0 {
				return fmt.Errorf("iters must be positive, got %d", iters)
			}
			dt, tol, err := wf.resolve()
			if err != nil {
				return err
			}

			widths, err := parseWidths(c.Args().Slice(), []int{128, 384, 768, 1024})
			if err != nil {
				return err
			}
			if c.IsSet("ld") || (cfg.LD != nil && c.Args().Len() == 0) {
				widths = []int{wf.ld}
			}

			logger, err := guda.NewBenchmarkLogger(outDir, "skipln_"+dt.String())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			header := []string{"ld", "block", "shape", "ns/op", "MB/s", "max abs err", "result"}
			if counters {
				header = append(header, "cycles/op", "IPC", "LLC miss/op")
			}
			table.SetHeader(header)
			table.SetAlignment(tablewriter.ALIGN_RIGHT)

			failed := 0
			for _, ld := range widths {
				if err := ctx.Err(); err != nil {
					return err
				}
				res := benchWidth(dt, ld, wf.rows, uint64(wf.seed), iters, counters, tol)
				if res.Status != "pass" {
					failed++
				}
				if err := logger.Log(res); err != nil {
					return err
				}
				row := []string{
					fmt.Sprint(ld),
					fmt.Sprint(res.BlockSize),
					res.Shape,
					fmt.Sprintf("%.0f", res.NsPerOp),
					fmt.Sprintf("%.1f", res.MBPerSec),
					fmt.Sprintf("%.3e", res.MaxAbsError),
					res.Status,
				}
				if counters {
					if res.CyclesPerOp > 0 {
						row = append(row, fmt.Sprintf("%.0f", res.CyclesPerOp), fmt.Sprintf("%.2f", res.IPC), fmt.Sprintf("%.1f", res.LLCMissesPerOp))
					} else {
						row = append(row, "-", "-", "-")
					}
				}
				table.Append(row)
			}
			table.Render()
			fmt.Printf("\nSession written to %s\n", logger.Path())

			if failed > 0 {
				return fmt.Errorf("%d of %d widths failed", failed, len(widths))
			}
			return nil
		},
	}
}

// benchWidth times iters launches of one row width on the default stream.
// With counters set the timed loop runs under MeasureCounters. The warm-up
// output is checked against the reference under tol.
func benchWidth(dt guda.DataType, ld, rows int, seed uint64, iters int, counters bool, tol guda.ToleranceConfig) guda.BenchmarkResult {
	launch := guda.SelectLaunch(ld)
	res := guda.BenchmarkResult{
		Name:       fmt.Sprintf("%v/ld=%d", dt, ld),
		Status:     "fail",
		Type:       dt.String(),
		LD:         ld,
		Rows:       rows,
		BlockSize:  launch.BlockSize,
		Shape:      launch.Shape.String(),
		Iterations: iters,
	}

	w, err := newWorkload(dt, ld, rows, seed)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer w.free()

	stream := guda.DefaultStream()
	run := func() error {
		if err := w.launch(stream); err != nil {
			return err
		}
		return stream.Synchronize()
	}

	// Warm up and verify once.
	if err := run(); err != nil {
		res.Error = err.Error()
		return res
	}
	check, err := w.verify(tol)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.MaxAbsError = check.MaxAbsError

	timed := func() error {
		for i := 0; i < iters; i++ {
			if err := run(); err != nil {
				return err
			}
		}
		return nil
	}
	if counters {
		pc, err := guda.MeasureCounters(timed)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Duration = pc.Duration
		if per := pc.PerOp(iters); per != nil {
			res.CyclesPerOp = per["cycles/op"]
			res.LLCMissesPerOp = per["LLC-misses/op"]
			res.L1DMissesPerOp = per["L1D-misses/op"]
			res.IPC = pc.IPC
		} else {
			slog.Warn("hardware counters unavailable, reporting timing only", "name", res.Name)
		}
	} else {
		start := time.Now()
		if err := timed(); err != nil {
			res.Error = err.Error()
			return res
		}
		res.Duration = time.Since(start)
	}
	res.NsPerOp = float64(res.Duration.Nanoseconds()) / float64(iters)
	res.MBPerSec = float64(w.bytesMoved()) / res.NsPerOp * 1e3

	if !check.IsAcceptable() {
		res.Error = check.String()
		return res
	}
	res.Status = "pass"
	slog.Debug("benchmark width complete", "name", res.Name, "ns_per_op", res.NsPerOp)
	return res
}
