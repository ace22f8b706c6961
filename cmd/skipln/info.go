package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	guda "github.com/LynnColeArt/guda-skipln"
)

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show device, CPU features and build information",
		Action: func(ctx context.Context, c *cli.Command) error {
			dev := guda.GetDevice()
			version, _ := guda.Version()
			if version == "" {
				version = "(devel)"
			}
			features := strings.Join(dev.Features.List(), " ")
			if features == "" {
				features = "none"
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			table.AppendBulk([][]string{
				{"device", dev.Name},
				{"cores", fmt.Sprint(dev.NumCores)},
				{"memory", fmt.Sprintf("%d MiB", dev.TotalMem>>20)},
				{"features", features},
				{"warp size", fmt.Sprint(guda.WarpSize)},
				{"max threads/block", fmt.Sprint(guda.MaxThreadsPerBlock)},
				{"epsilon", fmt.Sprint(guda.LayerNormEpsilon)},
				{"version", version},
				{"go", runtime.Version()},
				{"config", configFile},
			})
			table.Render()
			return nil
		},
	}
}
