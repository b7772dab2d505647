// Command nqq is the process entry point: run a script file, or drop into
// a line-editing REPL when invoked with none. Grounded on DYMS's main.go
// for the run-file-or-repl shape, rebuilt on cobra/liner/pkg-errors the
// way the broader example pack's CLI-fronted interpreters are built.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nqq-lang/nqq/internal/nqqconfig"
	"github.com/nqq-lang/nqq/internal/runtime"
)

var (
	cfgPath        string
	traceExecution bool
	printCode      bool
	stressGC       bool
	logGC          bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nqq [script]",
		Short: "nqq runs and explores the nqq scripting language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return runFile(args[0], cfg)
			}
			return runREPL(cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", ".nqqrc.yaml", "path to a debug-config YAML file")
	root.PersistentFlags().BoolVar(&traceExecution, "trace", false, "print each instruction as it executes")
	root.PersistentFlags().BoolVar(&printCode, "print-code", false, "disassemble compiled chunks before running")
	root.PersistentFlags().BoolVar(&stressGC, "stress-gc", false, "collect garbage on every allocation")
	root.PersistentFlags().BoolVar(&logGC, "log-gc", false, "log every collection cycle to stderr")

	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "run a script file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runFile(args[0], cfg)
		},
	}
}

func loadConfig() (nqqconfig.Config, error) {
	cfg, err := nqqconfig.Load(cfgPath)
	if err != nil {
		return cfg, errors.Wrapf(err, "loading config %s", cfgPath)
	}
	cfg.TraceExecution = cfg.TraceExecution || traceExecution
	cfg.PrintCode = cfg.PrintCode || printCode
	cfg.StressGC = cfg.StressGC || stressGC
	cfg.LogGC = cfg.LogGC || logGC
	return cfg, nil
}

func runFile(path string, cfg nqqconfig.Config) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	return interpret(source, cfg, filepath.Base(path))
}

// interpret compiles and runs source once, exiting with clox's traditional
// exit codes: 65 for a compile error, 70 for a runtime error.
func interpret(source []byte, cfg nqqconfig.Config, chunkName string) error {
	heap := newHeap(cfg)
	fn, cerr := runtime.Compile(source, heap)
	if cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
		os.Exit(65)
	}
	if cfg.PrintCode {
		runtime.Disassemble(os.Stdout, fn.Chunk, chunkName)
	}

	vm := newVM(heap, cfg)
	if rerr := vm.Interpret(fn); rerr != nil {
		fmt.Fprintln(os.Stderr, rerr)
		os.Exit(70)
	}
	return nil
}

func newHeap(cfg nqqconfig.Config) *runtime.Heap {
	heap := runtime.NewHeap()
	heap.StressGC = cfg.StressGC
	heap.LogGC = cfg.LogGC
	heap.LogWriter = os.Stderr
	if cfg.GCHeapGrowFactor > 0 {
		heap.HeapGrowFactor = cfg.GCHeapGrowFactor
	}
	return heap
}

func newVM(heap *runtime.Heap, cfg nqqconfig.Config) *runtime.VM {
	vm := runtime.NewVM(heap)
	vm.Stdout = os.Stdout
	vm.Stdin = os.Stdin
	vm.TraceExecution = cfg.TraceExecution
	runtime.RegisterNatives(vm)
	return vm
}

// runREPL reads one line at a time via liner (history + basic editing)
// and compiles/runs each line against a single persistent heap and VM, so
// globals defined on one line are visible on the next.
func runREPL(cfg nqqconfig.Config) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := replHistoryPath()
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	heap := newHeap(cfg)
	vm := newVM(heap, cfg)

	fmt.Println("nqq REPL — Ctrl-D to exit")
	for {
		input, err := line.Prompt("nqq> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fn, cerr := runtime.Compile([]byte(input), heap)
		if cerr != nil {
			fmt.Fprintln(os.Stderr, cerr)
			continue
		}
		if cfg.PrintCode {
			runtime.Disassemble(os.Stdout, fn.Chunk, "repl")
		}
		if rerr := vm.Interpret(fn); rerr != nil {
			fmt.Fprintln(os.Stderr, rerr)
		}
	}
}

func replHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nqq_history"
	}
	return filepath.Join(home, ".nqq_history")
}
