package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jstankevicius/boba/pkg/ast"
	"github.com/jstankevicius/boba/pkg/config"
	"github.com/jstankevicius/boba/pkg/decompiler"
	"github.com/jstankevicius/boba/pkg/lexer"
	"github.com/jstankevicius/boba/pkg/logging"
	"github.com/jstankevicius/boba/pkg/metrics"
	"github.com/jstankevicius/boba/pkg/parser"
	"github.com/jstankevicius/boba/pkg/repl"
	"github.com/jstankevicius/boba/pkg/runtime"
	"github.com/jstankevicius/boba/pkg/tracing"
)

var version = "0.1.0"

// Pretty printing for CLI status lines. Error diagnostics are rendered by
// pkg/errors.Format without color; printError then prints that text in
// red with an [ERROR] prefix.
var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func printInfo(msg string)    { infoColor.Printf("[INFO] %s\n", msg) }
func printSuccess(msg string) { successColor.Printf("[SUCCESS] %s\n", msg) }
func printWarning(msg string) { warningColor.Printf("[WARNING] %s\n", msg) }
func printError(err error)    { errorColor.Fprintf(os.Stderr, "[ERROR] %s\n", err.Error()) }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "boba",
		Short:   "Boba is a small Lisp-family language with a bytecode compiler and stack VM",
		Version: version,
	}

	runCmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Evaluate a .boba source file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().Bool("watch", false, "Re-evaluate the file from a fresh runtime on every save")
	runCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().String("trace-endpoint", "", "OTLP gRPC endpoint for tracing (empty keeps the config file's tracing settings)")

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		RunE:  runRepl,
	}

	disasmCmd := &cobra.Command{
		Use:   "disasm <file>",
		Short: "Compile a .boba file without executing it and print its bytecode listing",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisasm,
	}

	root.AddCommand(runCmd, replCmd, disasmCmd)
	return root
}

func newLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return nil
	}

	level := logging.INFO
	switch cfg.Logging.Level {
	case "debug":
		level = logging.DEBUG
	case "warn":
		level = logging.WARN
	case "error":
		level = logging.ERROR
	}

	logger, err := logging.NewLogger(logging.LoggerConfig{MinLevel: level})
	if err != nil {
		printWarning(fmt.Sprintf("failed to init logger: %s", err))
		return nil
	}
	return logger
}

// ambient bundles the process-lifetime pieces of the runtime stack: the
// ones that must be set up once per process (a Prometheus registry can't
// be registered twice, a tracer provider owns a background exporter)
// rather than once per Runtime. newRuntime attaches them to a fresh
// Runtime on every call, so `boba run --watch` can rebuild the Runtime
// itself on every save without re-registering collectors.
type ambient struct {
	cfg      *config.Config
	logger   *logging.Logger
	met      *metrics.Metrics
	tracer   *tracing.TracerProvider
	shutdown func()
}

// ambientOverrides carries CLI-flag values that take precedence over
// whatever pkg/config loaded, so `boba run --metrics-addr` works even
// with metrics left disabled in boba.yaml.
type ambientOverrides struct {
	metricsAddr   string
	traceEndpoint string
}

func setupAmbient(overrides ambientOverrides) *ambient {
	cfg, err := config.Load()
	if err != nil {
		printWarning(fmt.Sprintf("failed to load config, using defaults: %s", err))
		cfg = config.Default()
	}
	if overrides.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = overrides.metricsAddr
	}
	if overrides.traceEndpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.ExporterType = "otlp"
		cfg.Tracing.OTLPEndpoint = overrides.traceEndpoint
	}

	a := &ambient{cfg: cfg, logger: newLogger(cfg)}
	var shutdownFns []func()

	if cfg.Metrics.Enabled {
		a.met = metrics.NewMetrics(metrics.DefaultConfig())

		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: a.met.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				printWarning(fmt.Sprintf("metrics server stopped: %s", err))
			}
		}()
		printInfo(fmt.Sprintf("metrics listening on %s", cfg.Metrics.Addr))
		shutdownFns = append(shutdownFns, func() { srv.Shutdown(context.Background()) })
	}

	if cfg.Tracing.Enabled {
		tc := tracing.DefaultConfig()
		tc.Enabled = true
		tc.ExporterType = cfg.Tracing.ExporterType
		tc.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
		tc.SamplingRate = cfg.Tracing.SamplingRate

		tp, err := tracing.InitTracing(tc)
		if err != nil {
			printWarning(fmt.Sprintf("failed to init tracing: %s", err))
		} else {
			a.tracer = tp
			shutdownFns = append(shutdownFns, func() { tp.Shutdown(context.Background()) })
		}
	}

	a.shutdown = func() {
		for _, fn := range shutdownFns {
			fn()
		}
	}
	return a
}

// newRuntime builds a fresh Runtime bound to this process's ambient
// logging/metrics/tracing, with no compiled definitions and an empty
// value stack.
func (a *ambient) newRuntime() *runtime.Runtime {
	rt := runtime.NewWithMaxCallDepth(a.cfg.MaxCallDepth)
	if a.logger != nil {
		rt = rt.WithLogger(a.logger)
	}
	if a.met != nil {
		rt = rt.WithMetrics(a.met)
	}
	if a.tracer != nil {
		rt = rt.WithTracer(a.tracer)
	}
	return rt
}

func runRun(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	traceEndpoint, _ := cmd.Flags().GetString("trace-endpoint")
	path := args[0]

	amb := setupAmbient(ambientOverrides{metricsAddr: metricsAddr, traceEndpoint: traceEndpoint})
	defer amb.shutdown()

	evalOnce := func() error {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		return evalProgram(amb.newRuntime(), string(src))
	}

	if !watch {
		return evalOnce()
	}

	printInfo(fmt.Sprintf("watching %s for changes", path))
	if err := evalOnce(); err != nil {
		printError(err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				printInfo(fmt.Sprintf("%s changed, re-evaluating", path))
				if err := evalOnce(); err != nil {
					printError(err)
				} else {
					printSuccess("ok")
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			printError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

func evalProgram(rt *runtime.Runtime, src string) error {
	toks := lexer.Tokenize(src)
	p := parser.New(toks)

	for {
		node, err := p.ParseOne()
		if err != nil {
			return err
		}
		if node == nil {
			return nil
		}
		v, err := rt.Eval(node)
		if err != nil {
			printError(err)
			continue
		}
		if node.Head() != "def" {
			fmt.Println(v.ToString())
		}
	}
}

func runRepl(cmd *cobra.Command, args []string) error {
	amb := setupAmbient(ambientOverrides{})
	defer amb.shutdown()

	home, _ := os.UserHomeDir()
	session, err := repl.New(repl.Config{
		NewRuntime:  amb.newRuntime,
		HistoryFile: historyPath(home),
	})
	if err != nil {
		return err
	}
	defer session.Close()

	return session.Run()
}

func historyPath(home string) string {
	if home == "" {
		return ""
	}
	return home + "/.boba_history"
}

func runDisasm(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	amb := setupAmbient(ambientOverrides{})
	defer amb.shutdown()
	rt := amb.newRuntime()

	toks := lexer.Tokenize(string(src))
	p := parser.New(toks)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	for {
		node, err := p.ParseOne()
		if err != nil {
			return err
		}
		if node == nil {
			return nil
		}
		code, err := rt.Disassemble(node)
		if err != nil {
			printError(err)
			continue
		}
		printDisasmNode(w, node)
		fmt.Fprintln(w, decompiler.Format(code))
		fmt.Fprintln(w)
	}
}

func printDisasmNode(w *bufio.Writer, node *ast.Node) {
	if head := node.Head(); head != "" {
		infoColor.Fprintf(w, "; %s\n", head)
		return
	}
	infoColor.Fprintf(w, "; %s\n", node.Kind.String())
}
