// Package repl implements Boba's interactive read-eval-print loop: one
// line in, one compiled-and-executed top-level expression out, backed by
// chzyer/readline for history and line editing.
package repl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/jstankevicius/boba/pkg/decompiler"
	"github.com/jstankevicius/boba/pkg/lexer"
	"github.com/jstankevicius/boba/pkg/parser"
	"github.com/jstankevicius/boba/pkg/runtime"
)

// REPL drives one interactive session over a single Runtime. Meta-commands
// (":quit", ":reset", ":disasm <expr>") are recognized before a line is
// handed to the parser; anything else is treated as Boba source.
type REPL struct {
	rt      *runtime.Runtime
	rl      *readline.Instance
	out     io.Writer
	newRT   func() *runtime.Runtime
	prompt  string
}

// Config configures a REPL session.
type Config struct {
	// Prompt is shown before each input line. Defaults to "boba> ".
	Prompt string
	// HistoryFile, if non-empty, persists input history across sessions.
	HistoryFile string
	// NewRuntime builds a fresh Runtime, used both at startup and by the
	// ":reset" meta-command. Required.
	NewRuntime func() *runtime.Runtime
	Out        io.Writer
}

// New constructs a REPL. It does not start reading input; call Run.
func New(cfg Config) (*REPL, error) {
	if cfg.NewRuntime == nil {
		return nil, errors.New("repl: Config.NewRuntime is required")
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "boba> "
	}
	if cfg.Out == nil {
		cfg.Out = readline.Stdout
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return nil, fmt.Errorf("repl: init readline: %w", err)
	}

	return &REPL{
		rt:     cfg.NewRuntime(),
		rl:     rl,
		out:    cfg.Out,
		newRT:  cfg.NewRuntime,
		prompt: cfg.Prompt,
	}, nil
}

// Close releases the underlying terminal.
func (r *REPL) Close() error {
	return r.rl.Close()
}

// Run reads lines until EOF, Ctrl-D, or ":quit", evaluating each one.
// Errors from a single line are printed and do not end the session.
func (r *REPL) Run() error {
	for {
		line, err := r.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if done := r.handleMeta(line); done {
			return nil
		}
		if r.isMeta(line) {
			continue
		}

		r.evalLine(line)
	}
}

func (r *REPL) isMeta(line string) bool {
	return strings.HasPrefix(line, ":")
}

// handleMeta processes a leading-":" command. It returns true when the
// session should end.
func (r *REPL) handleMeta(line string) bool {
	switch {
	case line == ":quit" || line == ":q":
		return true
	case line == ":reset":
		r.rt = r.newRT()
		fmt.Fprintln(r.out, "runtime reset")
	case strings.HasPrefix(line, ":disasm "):
		r.disasm(strings.TrimPrefix(line, ":disasm "))
	}
	return false
}

func (r *REPL) disasm(src string) {
	node, err := parser.New(lexer.Tokenize(src)).ParseOne()
	if err != nil {
		fmt.Fprintln(r.out, err)
		return
	}
	if node == nil {
		return
	}
	code, err := r.rt.Disassemble(node)
	if err != nil {
		fmt.Fprintln(r.out, err)
		return
	}
	fmt.Fprintln(r.out, decompiler.Format(code))
}

func (r *REPL) evalLine(src string) {
	node, err := parser.New(lexer.Tokenize(src)).ParseOne()
	if err != nil {
		fmt.Fprintln(r.out, err)
		return
	}
	if node == nil {
		return
	}

	v, err := r.rt.Eval(node)
	if err != nil {
		fmt.Fprintln(r.out, err)
		return
	}
	fmt.Fprintln(r.out, v.ToString())
}
