package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/classkit/archive"
	"github.com/wippyai/classkit/classfile"
	"github.com/wippyai/classkit/config"
	"github.com/wippyai/classkit/instrument"
	"github.com/wippyai/classkit/trace"
)

const usage = `Usage: classkit [-v] [-config dir] <command> [flags] <args>

Commands:
  dump <file.class|file.jar>          print the event listing
  browse <file.class>                 interactive class browser
  roundtrip <in.class> <out.class>    decode and re-encode a class
  diff <a.class> <b.class>            compare the events of two classes
  trace <in.class> <out.cbor>         store the events as CBOR
  trace -decode <in.cbor>             print a stored trace
  instrument <in> <out>               insert entry hooks (class or jar)
  jar <in.jar> <out.jar>              re-encode every class in a jar
`

func main() {
	var (
		verbose   = flag.Bool("v", false, "Verbose logging")
		configDir = flag.String("config", "", "Directory containing classkit.toml (default: search upward)")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	log := newLogger(*verbose)
	defer log.Sync()
	classfile.SetLogger(log.Named("classfile"))
	archive.SetLogger(log.Named("archive"))
	instrument.SetLogger(log.Named("instrument"))

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if verbose {
		log, err = zap.NewDevelopment()
	} else {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		zc.Encoding = "console"
		log, err = zc.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func run(cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "dump":
		return dump(cfg, args)
	case "browse":
		return browse(cfg, args)
	case "roundtrip":
		return roundtrip(cfg, args)
	case "diff":
		return diff(cfg, args)
	case "trace":
		return traceCmd(cfg, args)
	case "instrument":
		return instrumentCmd(cfg, args)
	case "jar":
		return jarCmd(cfg, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// readFlags registers the [read] overrides shared by the listing commands.
func readFlags(fs *flag.FlagSet, cfg *config.Config) *classfile.ReadOptions {
	opts := cfg.ReadOptions()
	fs.BoolVar(&opts.SkipCode, "skip-code", opts.SkipCode, "Omit method bodies")
	fs.BoolVar(&opts.SkipDebug, "skip-debug", opts.SkipDebug, "Omit debug attributes")
	fs.BoolVar(&opts.SkipFrames, "skip-frames", opts.SkipFrames, "Omit stack map frames")
	fs.BoolVar(&opts.ExpandFrames, "expand-frames", opts.ExpandFrames, "Report frames uncompressed")
	return &opts
}

func writeFlags(fs *flag.FlagSet, cfg *config.Config) *classfile.WriterOptions {
	opts := cfg.WriterOptions()
	fs.BoolVar(&opts.ComputeMaxs, "compute-maxs", opts.ComputeMaxs, "Recompute max stack and locals")
	fs.BoolVar(&opts.ComputeFrames, "compute-frames", opts.ComputeFrames, "Recompute stack map frames")
	return &opts
}

func parse(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", fs.Name(), n, fs.NArg())
	}
	return fs.Args(), nil
}

func events(data []byte, opts classfile.ReadOptions) ([]trace.Event, error) {
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		return nil, err
	}
	r := trace.NewRecorder()
	if err := cr.Accept(r, opts); err != nil {
		return nil, err
	}
	return r.Events, nil
}

func readEvents(path string, opts classfile.ReadOptions) ([]trace.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return events(data, opts)
}

func dump(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	opts := readFlags(fs, cfg)
	args, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(args[0], ".jar") {
		evs, err := readEvents(args[0], *opts)
		if err != nil {
			return err
		}
		return trace.Fprint(os.Stdout, evs)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open jar: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	classes, err := archive.Classes(f, fi.Size())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		evs, err := events(classes[name], *opts)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("// %s\n", name)
		if err := trace.Fprint(os.Stdout, evs); err != nil {
			return err
		}
		fmt.Println()
	}
	return nil
}

func browse(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	opts := readFlags(fs, cfg)
	args, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	evs, err := readEvents(args[0], *opts)
	if err != nil {
		return err
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return trace.Fprint(os.Stdout, evs)
	}
	return runInteractive(args[0], evs)
}

func roundtrip(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("roundtrip", flag.ExitOnError)
	opts := writeFlags(fs, cfg)
	args, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		return err
	}
	cw := classfile.NewClassWriterFrom(cr, *opts)
	if err := cr.Accept(cw, classfile.ReadOptions{}); err != nil {
		return err
	}
	out, err := cw.Finish()
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], out, 0o644); err != nil {
		return err
	}
	if bytes.Equal(data, out) {
		fmt.Printf("%s: identical (%d bytes)\n", cr.ClassName(), len(out))
	} else {
		fmt.Printf("%s: %d -> %d bytes\n", cr.ClassName(), len(data), len(out))
	}
	return nil
}

func diff(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	opts := readFlags(fs, cfg)
	args, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	a, err := readEvents(args[0], *opts)
	if err != nil {
		return err
	}
	b, err := readEvents(args[1], *opts)
	if err != nil {
		return err
	}
	if d := trace.Diff(a, b); d != "" {
		fmt.Print(d)
		return fmt.Errorf("classes differ")
	}
	return nil
}

func traceCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	opts := readFlags(fs, cfg)
	decode := fs.Bool("decode", false, "Print a stored trace")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *decode {
		if fs.NArg() != 1 {
			return fmt.Errorf("trace -decode: expected 1 argument")
		}
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return err
		}
		f, err := trace.Unmarshal(data)
		if err != nil {
			return err
		}
		return trace.Fprint(os.Stdout, f.Events)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("trace: expected 2 arguments")
	}
	evs, err := readEvents(fs.Arg(0), *opts)
	if err != nil {
		return err
	}
	out, err := trace.Marshal(&trace.File{Class: trace.ClassName(evs), Events: evs})
	if err != nil {
		return err
	}
	return os.WriteFile(fs.Arg(1), out, 0o644)
}

func instrumentCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("instrument", flag.ExitOnError)
	icfg := cfg.InstrumentConfig()
	wopts := writeFlags(fs, cfg)
	hook := fs.String("hook", "", "Hook method as owner.name (overrides config)")
	methods := fs.String("methods", "", "Comma-separated method patterns (overrides config)")
	args, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	icfg.Writer = *wopts
	if *hook != "" {
		i := strings.LastIndexByte(*hook, '.')
		if i <= 0 {
			return fmt.Errorf("invalid -hook %q: expected owner.name", *hook)
		}
		icfg.HookOwner, icfg.HookName = (*hook)[:i], (*hook)[i+1:]
	}
	if *methods != "" {
		icfg.Methods = strings.Split(*methods, ",")
	}

	if strings.HasSuffix(args[0], ".jar") {
		stats, err := archive.ProcessFile(context.Background(), args[0], args[1],
			func(name string, data []byte) ([]byte, error) {
				return instrument.Transform(data, icfg)
			},
			cfg.ArchiveOptions())
		if err != nil {
			return err
		}
		fmt.Printf("%d entries, %d classes processed, %d failed\n", stats.Entries, stats.Transformed, stats.Failed)
		return nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	out, err := instrument.Transform(data, icfg)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], out, 0o644)
}

func jarCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("jar", flag.ExitOnError)
	opts := writeFlags(fs, cfg)
	args, err := parse(fs, args, 2)
	if err != nil {
		return err
	}

	if opts.ComputeFrames {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open jar: %w", err)
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		h, err := archive.BuildHierarchy(f, fi.Size())
		f.Close()
		if err != nil {
			return err
		}
		opts.Hierarchy = h
	}

	stats, err := archive.ProcessFile(context.Background(), args[0], args[1],
		func(name string, data []byte) ([]byte, error) {
			cr, err := classfile.NewClassReader(data)
			if err != nil {
				return nil, err
			}
			cw := classfile.NewClassWriterFrom(cr, *opts)
			if err := cr.Accept(cw, classfile.ReadOptions{}); err != nil {
				return nil, err
			}
			return cw.Finish()
		},
		cfg.ArchiveOptions())
	if err != nil {
		return err
	}
	fmt.Printf("%d entries, %d classes rewritten, %d failed\n", stats.Entries, stats.Transformed, stats.Failed)
	return nil
}
