package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	guda "github.com/LynnColeArt/guda-skipln"
	"github.com/LynnColeArt/guda-skipln/plugin"
)

func inspectCmd() *cli.Command {
	var (
		execute   bool
		seed      int
		tolerance string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Describe a serialized plugin and optionally execute it",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "run", Usage: "enqueue the plugin on random activations and verify the output", Destination: &execute},
			&cli.IntFlag{Name: "seed", Usage: "activation generator seed for --run", Value: 1, Destination: &seed},
			&cli.StringFlag{Name: "tolerance", Usage: "acceptance bound for --run: auto, strict or relaxed", Value: guda.ToleranceAuto, Destination: &tolerance},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("inspect expects exactly one file, got %d", c.Args().Len())
			}
			path := c.Args().First()
			p, err := plugin.Load(path)
			if err != nil {
				return err
			}
			if cfg.Tolerance != nil && !c.IsSet("tolerance") {
				tolerance = *cfg.Tolerance
			}
			tol, err := guda.ParseTolerance(tolerance, p.Type)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			table.AppendBulk([][]string{
				{"operator", plugin.Name},
				{"version", plugin.Version},
				{"type", p.Type.String()},
				{"ld", fmt.Sprint(p.LD)},
				{"input volume", fmt.Sprint(p.InputVolume())},
				{"rows", fmt.Sprint(p.InputVolume() / p.LD)},
				{"serialized bytes", fmt.Sprint(p.SerializationSize())},
				{"gamma", describe(p.Gamma)},
				{"beta", describe(p.Beta)},
			})
			table.Render()

			if !execute {
				return nil
			}
			return executePlugin(p, uint64(seed), tol)
		},
	}
}

// describe summarizes a parameter vector as mean, stddev and range.
func describe(v []float32) string {
	x := make([]float64, len(v))
	for i, f := range v {
		x[i] = float64(f)
	}
	mean, std := stat.MeanStdDev(x, nil)
	return fmt.Sprintf("mean %.4f  std %.4f  min %.4f  max %.4f",
		mean, std, floats.Min(x), floats.Max(x))
}

// executePlugin runs p the way a host engine would: initialize, negotiate
// the recorded shape, enqueue, synchronize, terminate.
func executePlugin(p *plugin.SkipLayerNorm, seed uint64, tol guda.ToleranceConfig) error {
	rows := p.InputVolume() / p.LD
	if rows == 0 {
		return fmt.Errorf("plugin has no recorded input volume")
	}

	ctx := guda.NewContext()
	defer ctx.Destroy()
	if err := p.Initialize(ctx); err != nil {
		return err
	}
	defer p.Terminate()

	w, err := newWorkload(p.Type, p.LD, rows, seed)
	if err != nil {
		return err
	}
	defer w.free()
	// The plugin's own parameters replace the generated ones.
	w.c.Gamma, w.c.Beta = p.Gamma, p.Beta

	desc := plugin.TensorDesc{Dims: plugin.Dims{rows, 1, p.LD, 1, 1}, Type: p.Type}
	descs := []plugin.TensorDesc{desc, desc}
	if err := p.Configure(descs, []plugin.TensorDesc{desc}); err != nil {
		return err
	}

	stream := ctx.CreateStream()
	if err := p.Enqueue(stream, descs, []guda.DevicePtr{w.input, w.skip}, []guda.DevicePtr{w.output}); err != nil {
		return err
	}
	if err := stream.Synchronize(); err != nil {
		return err
	}

	res, err := w.verify(tol)
	if err != nil {
		return err
	}
	fmt.Printf("\nexecuted %d rows: max abs err %.3e, %s\n", rows, res.MaxAbsError, res)
	if !res.IsAcceptable() {
		return fmt.Errorf("%d of %d outputs outside tolerance", res.NumErrors, res.TotalItems)
	}
	return nil
}
