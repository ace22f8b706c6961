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

func runCmd() *cli.Command {
	var wf workloadFlags

	return &cli.Command{
		Name:  "run",
		Usage: "Normalize random rows once and check them against the float64 reference",
		Flags: wf.flags(384, 8),
		Action: func(ctx context.Context, c *cli.Command) error {
			wf.apply(c, cfg)
			dt, tol, err := wf.resolve()
			if err != nil {
				return err
			}

			w, err := newWorkload(dt, wf.ld, wf.rows, uint64(wf.seed))
			if err != nil {
				return err
			}
			defer w.free()

			stream := guda.DefaultStream()
			start := time.Now()
			if err := w.launch(stream); err != nil {
				return err
			}
			if err := stream.Synchronize(); err != nil {
				return err
			}
			elapsed := time.Since(start)

			res, err := w.verify(tol)
			if err != nil {
				return err
			}
			slog.Debug("run complete", "type", dt, "ld", wf.ld, "rows", wf.rows, "elapsed", elapsed)

			cfgLaunch := guda.SelectLaunch(wf.ld)
			status := "PASS"
			if !res.IsAcceptable() {
				status = "FAIL"
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"type", "ld", "rows", "block", "shape", "max abs err", "max rel err", "errors", "time", "result"})
			table.Append([]string{
				dt.String(),
				fmt.Sprint(wf.ld),
				fmt.Sprint(wf.rows),
				fmt.Sprint(cfgLaunch.BlockSize),
				cfgLaunch.Shape.String(),
				fmt.Sprintf("%.3e", res.MaxAbsError),
				fmt.Sprintf("%.3e", res.MaxRelError),
				fmt.Sprintf("%d/%d", res.NumErrors, res.TotalItems),
				elapsed.String(),
				status,
			})
			table.Render()

			if !res.IsAcceptable() {
				return fmt.Errorf("%d of %d outputs outside %s tolerance\n%s", res.NumErrors, res.TotalItems, wf.tolerance, res)
			}
			return nil
		},
	}
}
