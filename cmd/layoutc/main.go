package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"layoutc/internal/config"
	"layoutc/internal/layoutfile"
	"layoutc/pkg/asm"
	"layoutc/pkg/compiler"
	"layoutc/pkg/vm"
)

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	in     string
	output string
	props  map[string]any
	debug  bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("layoutc", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var (
		in         = flags.String("in", "", "Layout file (.yaml) or assembly listing (.lasm)")
		configPath = flags.String("config", "", "Path to config file")
		output     = flags.String("output", "", "Override output: listing, html or both")
		watch      = flags.Bool("watch", false, "Recompile whenever the input changes")
		debug      = flags.Bool("debug", false, "Log every compiled program")
	)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return nil
		}
		printUsage(stderr)
		return err
	}
	if *in == "" && flags.NArg() > 0 {
		*in = flags.Arg(0)
	}

	cfg, err := config.Load(*configPath, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *in == "" {
		*in = cfg.Input
	}
	if *in == "" {
		printUsage(stderr)
		return errors.New("no input file")
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *debug {
		cfg.Debug = true
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger := log.New(stderr, "layoutc: ", 0)
	opts := options{in: *in, output: cfg.Output, props: cfg.Props, debug: cfg.Debug}

	if err := build(opts, stdout, logger); err != nil {
		if !*watch {
			return err
		}
		logger.Printf("%v", err)
	}
	if !*watch {
		return nil
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return watchInput(ctx, opts, cfg.Watch.Debounce, stdout, logger)
}

// build compiles the input into a fresh heap and prints the result.
func build(opts options, stdout io.Writer, logger *log.Logger) error {
	env := asm.NewEnvironment()
	env.Logger = logger
	env.Debug = opts.debug

	prog, props, err := compileInput(env, opts.in)
	if err != nil {
		return err
	}

	if opts.output == config.OutputListing || opts.output == config.OutputBoth {
		fmt.Fprintf(stdout, "; %s %s\n", opts.in, prog.Range())
		fmt.Fprint(stdout, asm.Disassemble(env.Heap, prog.Range()))
	}
	if opts.output == config.OutputHTML || opts.output == config.OutputBoth {
		out, err := render(env.Heap, prog, mergeProps(opts.props, props))
		if err != nil {
			return fmt.Errorf("rendering %s: %w", opts.in, err)
		}
		fmt.Fprintln(stdout, out)
	}
	return nil
}

func compileInput(env *asm.Environment, path string) (asm.Program, map[string]any, error) {
	if strings.EqualFold(filepath.Ext(path), ".lasm") {
		data, err := os.ReadFile(path)
		if err != nil {
			return asm.Program{}, nil, err
		}
		prog, err := asm.AssembleText(env, string(data), asm.Meta{TemplateMeta: path})
		if err != nil {
			return asm.Program{}, nil, fmt.Errorf("%s: %w", path, err)
		}
		return prog, nil, nil
	}

	f, err := layoutfile.Load(path)
	if err != nil {
		return asm.Program{}, nil, err
	}
	l, err := f.Layout()
	if err != nil {
		return asm.Program{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	prog, err := compiler.Compile(l, env)
	if err != nil {
		return asm.Program{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, f.Props, nil
}

func render(heap *vm.Heap, prog asm.Program, props map[string]any) (string, error) {
	tree := vm.NewTreeBuilder()
	m := vm.NewMachine(heap, tree)
	m.Self = props
	if err := m.Execute(prog.Range()); err != nil {
		return "", err
	}
	return tree.HTML()
}

// mergeProps returns base overridden by over.
func mergeProps(base, over map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}

// watchInput rebuilds after the input file changes. Editors often write a
// file in several steps, so events inside the debounce window are merged.
func watchInput(ctx context.Context, opts options, debounce time.Duration, stdout io.Writer, logger *log.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory so rename-on-save keeps working.
	if err := w.Add(filepath.Dir(opts.in)); err != nil {
		return err
	}
	logger.Printf("watching %s", opts.in)

	target := filepath.Clean(opts.in)
	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer = time.After(debounce)

		case <-timer:
			timer = nil
			logger.Printf("%s changed, recompiling", opts.in)
			if err := build(opts, stdout, logger); err != nil {
				logger.Printf("%v", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Printf("watcher error: %v", err)
		}
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: layoutc [flags] <file>

Compiles a layout file (.yaml) or an assembly listing (.lasm) and prints the
program listing, the rendered HTML, or both.

Flags:
  -in string       Input file (or pass it as the first argument, or set
                   input in the config file)
  -config string   Path to config file
  -output string   listing, html or both (default from config: listing)
  -watch           Recompile whenever the input changes
  -debug           Log every compiled program
`)
}
