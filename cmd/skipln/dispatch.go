package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	guda "github.com/LynnColeArt/guda-skipln"
)

var defaultWidths = []int{1, 16, 32, 33, 128, 129, 384, 385, 768, 1024}

func dispatchCmd() *cli.Command {
	return &cli.Command{
		Name:      "dispatch",
		Usage:     "Show the launch shape chosen for each row width",
		ArgsUsage: "[ld...]",
		Action: func(ctx context.Context, c *cli.Command) error {
			widths, err := parseWidths(c.Args().Slice(), defaultWidths)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ld", "block", "shape", "elements/thread", "idle threads"})
			table.SetAlignment(tablewriter.ALIGN_RIGHT)
			for _, ld := range widths {
				cfg := guda.SelectLaunch(ld)
				perThread := (ld + cfg.BlockSize - 1) / cfg.BlockSize
				idle := cfg.BlockSize*perThread - ld
				table.Append([]string{
					strconv.Itoa(ld),
					strconv.Itoa(cfg.BlockSize),
					cfg.Shape.String(),
					strconv.Itoa(perThread),
					strconv.Itoa(idle),
				})
			}
			table.Render()
			return nil
		},
	}
}

// parseWidths converts positional row widths, falling back to def.
func parseWidths(args []string, def []int) ([]int, error) {
	if len(args) == 0 {
		return def, nil
	}
	widths := make([]int, 0, len(args))
	for _, a := range args {
		ld, err := strconv.Atoi(a)
		if err != nil || ld <= 0 {
			return nil, fmt.Errorf("invalid row width %q", a)
		}
		widths = append(widths, ld)
	}
	return widths, nil
}
