package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	guda "github.com/LynnColeArt/guda-skipln"
)

// Global flag state shared by the subcommands.
var (
	configFile string
	logLevel   string
	logFormat  string
	cfg        Config
)

// Config represents the skipln configuration file
// (~/.config/skipln/config.yaml). Pointer fields distinguish "not set" from
// zero values.
type Config struct {
	// Workload defaults
	Type      *string `yaml:"type"`
	LD        *int    `yaml:"ld"`
	Rows      *int    `yaml:"rows"`
	Seed      *int    `yaml:"seed"`
	Tolerance *string `yaml:"tolerance"`

	// Benchmarking
	Iterations *int   `yaml:"iterations"`
	BenchDir   string `yaml:"bench_dir"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "skipln", "config.yaml")
}

// LoadConfig reads the config file. It returns a zero Config if the file
// doesn't exist or can't be parsed.
func LoadConfig(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}
	}
	return c
}

// applyLogConfig applies config file logging defaults when the flags were
// not explicitly set.
func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// workloadFlags are the flags shared by the commands that generate rows.
type workloadFlags struct {
	typeName  string
	ld        int
	rows      int
	seed      int
	tolerance string
}

func (w *workloadFlags) flags(defaultLD, defaultRows int) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "element type: float32 or float16", Value: "float32", Destination: &w.typeName},
		&cli.IntFlag{Name: "ld", Usage: "row width (hidden size)", Value: defaultLD, Destination: &w.ld},
		&cli.IntFlag{Name: "rows", Aliases: []string{"r"}, Usage: "number of rows", Value: defaultRows, Destination: &w.rows},
		&cli.IntFlag{Name: "seed", Usage: "data generator seed", Value: 1, Destination: &w.seed},
		&cli.StringFlag{Name: "tolerance", Usage: "acceptance bound: auto, strict or relaxed", Value: guda.ToleranceAuto, Destination: &w.tolerance},
	}
}

// apply overlays config file defaults on flags the user did not set.
func (w *workloadFlags) apply(c *cli.Command, cfg Config) {
	if cfg.Type != nil && !c.IsSet("type") {
		w.typeName = *cfg.Type
	}
	if cfg.LD != nil && !c.IsSet("ld") {
		w.ld = *cfg.LD
	}
	if cfg.Rows != nil && !c.IsSet("rows") {
		w.rows = *cfg.Rows
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		w.seed = *cfg.Seed
	}
	if cfg.Tolerance != nil && !c.IsSet("tolerance") {
		w.tolerance = *cfg.Tolerance
	}
}

// resolve parses the element type and the tolerance preset for it.
func (w *workloadFlags) resolve() (guda.DataType, guda.ToleranceConfig, error) {
	dt, err := guda.ParseDataType(w.typeName)
	if err != nil {
		return dt, guda.ToleranceConfig{}, err
	}
	tol, err := guda.ParseTolerance(w.tolerance, dt)
	return dt, tol, err
}
