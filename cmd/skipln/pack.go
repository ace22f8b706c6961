package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	guda "github.com/LynnColeArt/guda-skipln"
	"github.com/LynnColeArt/guda-skipln/plugin"
)

func packCmd() *cli.Command {
	var (
		wf  workloadFlags
		out string
	)

	flags := wf.flags(384, 128)
	flags = append(flags, &cli.StringFlag{
		Name:        "out",
		Aliases:     []string{"o"},
		Usage:       "path of the serialized plugin",
		Destination: &out,
		Required:    true,
	})

	return &cli.Command{
		Name:  "pack",
		Usage: "Create a plugin with generated gamma/beta and serialize it",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			wf.apply(c, cfg)
			dt, err := guda.ParseDataType(wf.typeName)
			if err != nil {
				return err
			}
			if wf.ld <= 0 || wf.rows <= 0 {
				return fmt.Errorf("ld and rows must be positive, got ld=%d rows=%d", wf.ld, wf.rows)
			}

			params := guda.GenerateSkipLayerNormCase(wf.ld, 1, uint64(wf.seed))
			creator := &plugin.Creator{}
			p, err := creator.CreatePlugin([]plugin.Field{
				{Name: "ld", Type: plugin.FieldInt32, Data: []int32{int32(wf.ld)}},
				{Name: "type_id", Type: plugin.FieldInt32, Data: []int32{int32(dt)}},
				{Name: "gamma", Type: plugin.FieldFloat32, Data: params.Gamma},
				{Name: "beta", Type: plugin.FieldFloat32, Data: params.Beta},
			})
			if err != nil {
				return err
			}

			desc := plugin.TensorDesc{Dims: plugin.Dims{wf.rows, 1, wf.ld, 1, 1}, Type: dt}
			if err := p.Configure([]plugin.TensorDesc{desc, desc}, []plugin.TensorDesc{desc}); err != nil {
				return err
			}
			if err := p.WriteFile(out); err != nil {
				return err
			}
			slog.Info("plugin written", "path", out, "bytes", p.SerializationSize(),
				"type", dt, "ld", wf.ld, "volume", p.InputVolume())
			return nil
		},
	}
}
