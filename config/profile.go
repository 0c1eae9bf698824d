package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const defaultConfigFilename = ".atomcache.yaml"

type fileConfig struct {
	Profiles map[string]profileSettings `yaml:"profiles"`
}

type profileSettings struct {
	Verbose       *bool          `yaml:"verbose"`
	Silent        *bool          `yaml:"silent"`
	LogLevel      *string        `yaml:"log_level"`
	LogFile       *string        `yaml:"log_file"`
	Buckets       *int           `yaml:"buckets"`
	Vocab         *StringSlice   `yaml:"vocab"`
	NoStatic      *bool          `yaml:"no_static"`
	Workers       *int           `yaml:"workers"`
	Ops           *int           `yaml:"ops"`
	Duration      *time.Duration `yaml:"duration"`
	Hold          *int           `yaml:"hold"`
	Seed          *int64         `yaml:"seed"`
	Rate          *float64       `yaml:"rate"`
	StatsInterval *time.Duration `yaml:"stats_interval"`
	MetricsAddr   *string        `yaml:"metrics_addr"`
	Format        *string        `yaml:"format"`
	OutputPath    *string        `yaml:"output"`
	JSONPretty    *bool          `yaml:"json_pretty"`
}

// StringSlice accepts either a single YAML scalar or a sequence.
type StringSlice []string

func (s *StringSlice) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var str string
		if err := value.Decode(&str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*s = nil
			return nil
		}
		*s = []string{str}
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		cleaned := make([]string, 0, len(raw))
		for _, item := range raw {
			if item = strings.TrimSpace(item); item != "" {
				cleaned = append(cleaned, item)
			}
		}
		*s = cleaned
		return nil
	default:
		return fmt.Errorf("unsupported YAML type %s for string slice", value.ShortTag())
	}
}

func (s *StringSlice) ToSlice() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), *s...)
}

// ApplyProfile loads and applies the requested configuration profile to cfg.
// Command-line flag overrides take precedence over profile values.
func ApplyProfile(cfg *Config, cmd *cobra.Command) error {
	path, err := resolveConfigPath(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("locating config file: %w", err)
	}

	if path == "" {
		if cfg.Profile != "" {
			return fmt.Errorf("profile %q requested but no %s file was found", cfg.Profile, defaultConfigFilename)
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	profileName := cfg.Profile
	if profileName == "" {
		if _, ok := fc.Profiles["default"]; !ok {
			return nil
		}
		profileName = "default"
	}

	profile, ok := fc.Profiles[profileName]
	if !ok {
		return fmt.Errorf("profile %q not found in %s", profileName, path)
	}

	applyProfileSettings(cfg, &profile, cmd.Flags())
	cfg.ConfigPath = path
	return nil
}

func applyProfileSettings(cfg *Config, profile *profileSettings, flags *pflag.FlagSet) {
	setBool(flags, "verbose", profile.Verbose, &cfg.Verbose)
	setBool(flags, "silent", profile.Silent, &cfg.Silent)
	setString(flags, "log-level", profile.LogLevel, &cfg.LogLevel)
	setString(flags, "log-file", profile.LogFile, &cfg.LogFile)
	setInt(flags, "buckets", profile.Buckets, &cfg.Buckets)
	if profile.Vocab != nil && !flagChanged(flags, "vocab") {
		cfg.VocabPaths = profile.Vocab.ToSlice()
	}
	setBool(flags, "no-static", profile.NoStatic, &cfg.NoStatic)
	setInt(flags, "workers", profile.Workers, &cfg.Workers)
	setInt(flags, "ops", profile.Ops, &cfg.Ops)
	setDuration(flags, "duration", profile.Duration, &cfg.Duration)
	setInt(flags, "hold", profile.Hold, &cfg.Hold)
	if profile.Seed != nil && !flagChanged(flags, "seed") {
		cfg.Seed = *profile.Seed
	}
	if profile.Rate != nil && !flagChanged(flags, "rate") {
		cfg.Rate = *profile.Rate
	}
	setDuration(flags, "stats-interval", profile.StatsInterval, &cfg.StatsInterval)
	setString(flags, "metrics-addr", profile.MetricsAddr, &cfg.MetricsAddr)
	if profile.Format != nil && !flagChanged(flags, "format") {
		cfg.Format = Format(strings.TrimSpace(*profile.Format))
	}
	setString(flags, "output", profile.OutputPath, &cfg.OutputPath)
	setBool(flags, "json-pretty", profile.JSONPretty, &cfg.JSONPretty)
}

func setBool(flags *pflag.FlagSet, name string, value *bool, dst *bool) {
	if value != nil && !flagChanged(flags, name) {
		*dst = *value
	}
}

func setInt(flags *pflag.FlagSet, name string, value *int, dst *int) {
	if value != nil && !flagChanged(flags, name) {
		*dst = *value
	}
}

func setString(flags *pflag.FlagSet, name string, value *string, dst *string) {
	if value != nil && !flagChanged(flags, name) {
		*dst = strings.TrimSpace(*value)
	}
}

func setDuration(flags *pflag.FlagSet, name string, value *time.Duration, dst *time.Duration) {
	if value != nil && !flagChanged(flags, name) {
		*dst = *value
	}
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		abs := explicit
		if !filepath.IsAbs(abs) {
			if resolved, err := filepath.Abs(explicit); err == nil {
				abs = resolved
			}
		}
		if _, err := os.Stat(abs); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", err
			}
			return "", fmt.Errorf("stat %s: %w", abs, err)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	if candidate := filepath.Join(cwd, defaultConfigFilename); fileExists(candidate) {
		return candidate, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		if candidate := filepath.Join(home, defaultConfigFilename); fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	flag := flags.Lookup(name)
	if flag == nil {
		return false
	}
	return flag.Changed
}
