package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/atomcache/internal/intern"
)

// Format represents an output format option.
type Format string

// Supported output format options.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
)

const (
	defaultWorkers       = 8
	defaultOps           = 10000
	defaultHold          = 16
	defaultStatsInterval = 2 * time.Second
)

// Config captures all runtime configuration for the CLI.
type Config struct {
	ConfigPath string
	Profile    string

	Verbose  bool
	Silent   bool
	LogLevel string
	LogFile  string

	Buckets    int
	VocabPaths []string
	NoStatic   bool

	Workers       int
	Ops           int
	Duration      time.Duration
	Hold          int
	Seed          int64
	Rate          float64
	StatsInterval time.Duration
	MetricsAddr   string

	Format     Format
	OutputPath string
	JSONPretty bool
}

// BindFlags registers the shared command-line flags and returns a Config
// instance whose fields are populated when Cobra parses flag values.
func BindFlags(cmd *cobra.Command) *Config {
	cfg := &Config{}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigPath, "config", "", "Path to a YAML config file (default: ./.atomcache.yaml or ~/.atomcache.yaml)")
	flags.StringVar(&cfg.Profile, "profile", "", "Named profile to load from the config file")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose logging output")
	flags.BoolVar(&cfg.Silent, "silent", false, "Suppress console logging")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFile, "log-file", "", "Also append log lines to this file")
	flags.IntVar(&cfg.Buckets, "buckets", intern.DefaultBuckets, "Number of table buckets (rounded up to a power of two)")
	flags.StringSliceVar(&cfg.VocabPaths, "vocab", nil, "Word list files to intern (default: built-in markup names)")
	flags.BoolVar(&cfg.NoStatic, "no-static", false, "Intern every word dynamically instead of using the built-in static vocabulary")
	flags.IntVar(&cfg.Workers, "workers", defaultWorkers, "Number of concurrent stress workers")
	flags.IntVar(&cfg.Ops, "ops", defaultOps, "Operations per stress worker (0 to run for --duration only)")
	flags.DurationVar(&cfg.Duration, "duration", 0, "Stop the stress run after this long")
	flags.IntVar(&cfg.Hold, "hold", defaultHold, "Atoms each stress worker keeps alive before releasing the oldest")
	flags.Int64Var(&cfg.Seed, "seed", 0, "Random seed for stress word selection (0 picks one)")
	flags.Float64Var(&cfg.Rate, "rate", 0, "Cap stress operations per second across all workers (0 for unlimited)")
	flags.DurationVar(&cfg.StatsInterval, "stats-interval", defaultStatsInterval, "Interval between progress log lines")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flags.StringVar((*string)(&cfg.Format), "format", string(FormatJSON), "Output format (json, csv, txt)")
	flags.StringVarP(&cfg.OutputPath, "output", "o", "", "Optional file path to write results")
	flags.BoolVar(&cfg.JSONPretty, "json-pretty", false, "Indent JSON output")

	return cfg
}

// Validate ensures the provided configuration values meet the expected
// constraints and normalises their representation where required.
func (c *Config) Validate() error {
	if c.Silent && c.Verbose {
		return fmt.Errorf("--silent and --verbose cannot be used together")
	}

	format := strings.ToLower(strings.TrimSpace(string(c.Format)))
	switch Format(format) {
	case FormatJSON, FormatCSV, FormatTXT:
		c.Format = Format(format)
	case "":
		c.Format = FormatJSON
	default:
		return fmt.Errorf("invalid output format %q: expected json, csv, or txt", c.Format)
	}

	if len(c.VocabPaths) > 0 {
		paths := make([]string, 0, len(c.VocabPaths))
		for _, path := range c.VocabPaths {
			if path = strings.TrimSpace(path); path != "" {
				paths = append(paths, path)
			}
		}
		c.VocabPaths = paths
	}

	if c.Buckets <= 0 {
		c.Buckets = intern.DefaultBuckets
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Hold <= 0 {
		c.Hold = defaultHold
	}
	if c.Ops < 0 {
		return fmt.Errorf("invalid --ops %d: must not be negative", c.Ops)
	}
	if c.Duration < 0 {
		return fmt.Errorf("invalid --duration %s: must not be negative", c.Duration)
	}
	if c.Ops == 0 && c.Duration == 0 {
		c.Ops = defaultOps
	}
	if c.Rate < 0 {
		return fmt.Errorf("invalid --rate %g: must not be negative", c.Rate)
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = defaultStatsInterval
	}

	c.LogLevel = strings.TrimSpace(c.LogLevel)
	c.LogFile = strings.TrimSpace(c.LogFile)
	c.MetricsAddr = strings.TrimSpace(c.MetricsAddr)
	c.OutputPath = strings.TrimSpace(c.OutputPath)

	return nil
}

// LiveOutput returns true when results should be sent to stdout instead of a file.
func (c *Config) LiveOutput() bool {
	return strings.TrimSpace(c.OutputPath) == ""
}
