// Package config handles classkit.toml configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/classkit/archive"
	"github.com/wippyai/classkit/classfile"
	"github.com/wippyai/classkit/errors"
	"github.com/wippyai/classkit/instrument"
)

// FileName is the configuration file name.
const FileName = "classkit.toml"

// Config represents a classkit.toml file.
type Config struct {
	Read       Read       `toml:"read"`
	Write      Write      `toml:"write"`
	Instrument Instrument `toml:"instrument"`
	Archive    Archive    `toml:"archive"`

	// Dir is the directory containing the classkit.toml file (set at load time).
	Dir string `toml:"-"`
}

// Read configures the class reader.
type Read struct {
	SkipCode     bool `toml:"skip-code"`
	SkipDebug    bool `toml:"skip-debug"`
	SkipFrames   bool `toml:"skip-frames"`
	ExpandFrames bool `toml:"expand-frames"`
}

// Write configures the class writer.
type Write struct {
	ComputeMaxs   bool   `toml:"compute-maxs"`
	ComputeFrames bool   `toml:"compute-frames"`
	DeadCode      string `toml:"dead-code"`
}

// Instrument configures hook insertion.
type Instrument struct {
	Methods          []string `toml:"methods"`
	Exclude          []string `toml:"exclude"`
	HookOwner        string   `toml:"hook-owner"`
	HookName         string   `toml:"hook-name"`
	HookInterface    bool     `toml:"hook-interface"`
	SkipConstructors bool     `toml:"skip-constructors"`
}

// Archive configures JAR processing. Include and Exclude are entry name
// prefixes.
type Archive struct {
	Workers   int      `toml:"workers"`
	Include   []string `toml:"include"`
	Exclude   []string `toml:"exclude"`
	KeepGoing bool     `toml:"keep-going"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{Write: Write{ComputeFrames: true, DeadCode: "marker"}}
}

// Load parses a classkit.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "cannot read "+path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.WithPath(err, path)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cannot resolve path "+dir)
	}
	return c, nil
}

// Parse decodes and validates classkit.toml content. Unset sections keep
// the values of Default.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse error")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, nil, "unknown key "+undecoded[0].String())
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if _, ok := classfile.ParseDeadCodePolicy(c.Write.DeadCode); !ok {
		return errors.InvalidInput(errors.PhaseConfig, []string{"write", "dead-code"}, "expected marker or omit, got "+c.Write.DeadCode)
	}
	if c.Archive.Workers < 0 {
		return errors.InvalidInput(errors.PhaseConfig, []string{"archive", "workers"}, "must not be negative")
	}
	in := c.Instrument
	if (in.HookOwner == "") != (in.HookName == "") {
		return errors.InvalidInput(errors.PhaseConfig, []string{"instrument"}, "hook-owner and hook-name must be set together")
	}
	return nil
}

// FindAndLoad walks up from startDir to find a classkit.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cannot resolve path "+startDir)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ReadOptions returns the reader options.
func (c *Config) ReadOptions() classfile.ReadOptions {
	return classfile.ReadOptions{
		SkipCode:     c.Read.SkipCode,
		SkipDebug:    c.Read.SkipDebug,
		SkipFrames:   c.Read.SkipFrames,
		ExpandFrames: c.Read.ExpandFrames,
	}
}

// WriterOptions returns the writer options.
func (c *Config) WriterOptions() classfile.WriterOptions {
	policy, _ := classfile.ParseDeadCodePolicy(c.Write.DeadCode)
	return classfile.WriterOptions{
		ComputeMaxs:   c.Write.ComputeMaxs,
		ComputeFrames: c.Write.ComputeFrames,
		DeadCode:      policy,
	}
}

// InstrumentConfig returns the instrumentation config.
func (c *Config) InstrumentConfig() instrument.Config {
	in := c.Instrument
	cfg := instrument.Config{
		Methods:          in.Methods,
		HookOwner:        in.HookOwner,
		HookName:         in.HookName,
		HookInterface:    in.HookInterface,
		SkipConstructors: in.SkipConstructors,
		Writer:           c.WriterOptions(),
	}
	if len(in.Exclude) > 0 {
		cfg.Exclude = instrument.NewWildcardMatcher(in.Exclude)
	}
	return cfg
}

// ArchiveOptions returns the archive options.
func (c *Config) ArchiveOptions() archive.Options {
	a := c.Archive
	opts := archive.Options{Workers: a.Workers, KeepGoing: a.KeepGoing}
	if len(a.Include) > 0 || len(a.Exclude) > 0 {
		opts.Filter = func(name string) bool {
			return (len(a.Include) == 0 || hasPrefix(name, a.Include)) && !hasPrefix(name, a.Exclude)
		}
	}
	return opts
}

func hasPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
