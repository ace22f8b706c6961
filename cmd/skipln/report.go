package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	guda "github.com/LynnColeArt/guda-skipln"
)

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Summarize benchmark session files written by bench",
		ArgsUsage: "<session.json>...",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return fmt.Errorf("report expects at least one session file")
			}
			failed := 0
			for _, path := range c.Args().Slice() {
				s, err := guda.LoadBenchmarkSession(path)
				if err != nil {
					return err
				}
				s.WriteSummary(os.Stdout)
				for _, r := range s.Results {
					if r.Status == "fail" {
						failed++
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d failed results", failed)
			}
			return nil
		},
	}
}
