// Package runtime implements the Runtime facade: the single entry point
// that ties the Emitter (pkg/compiler) and the Processor (pkg/vm)
// together into one read-compile-execute operation.
package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jstankevicius/boba/pkg/ast"
	"github.com/jstankevicius/boba/pkg/compiler"
	"github.com/jstankevicius/boba/pkg/logging"
	"github.com/jstankevicius/boba/pkg/metrics"
	"github.com/jstankevicius/boba/pkg/tracing"
	"github.com/jstankevicius/boba/pkg/vm"
)

// builtinTable lists the builtins the Runtime pre-registers at
// construction. The order is fixed and documented since it determines
// each builtin's variable index.
var builtinTable = []struct {
	name string
	op   vm.Opcode
}{
	{"+", vm.Add},
	{"-", vm.Sub},
	{"*", vm.Mul},
	{"/", vm.Div},
	{"=", vm.Eq},
	{">", vm.Greater},
	{">=", vm.GreaterEq},
	{"<", vm.Less},
	{"<=", vm.LessEq},
}

// Runtime owns the Processor and the Emitter's compile-time scope stack.
// A Runtime is single-threaded and not safe for concurrent use by
// multiple goroutines; the CLI and REPL each hold one per session.
type Runtime struct {
	proc   *vm.Processor
	emit   *compiler.Emitter
	log    *logging.Logger
	met    *metrics.Metrics
	tracer *tracing.TracerProvider
}

// New constructs a Runtime with builtins installed at indices 0..N-1 and
// logging disabled (a nil *logging.Logger turns every log call into a
// no-op). Callers that want eval logging should follow New with
// WithLogger.
func New() *Runtime {
	proc := vm.NewProcessor()
	emit := compiler.NewEmitter(proc)
	for _, b := range builtinTable {
		emit.DefineBuiltin(b.name, b.op)
	}
	return &Runtime{proc: proc, emit: emit}
}

// NewWithMaxCallDepth is New with the Processor's recursion guard set
// from pkg/config's Config.MaxCallDepth instead of the VM's own default.
func NewWithMaxCallDepth(depth int) *Runtime {
	r := New()
	r.proc.MaxCallDepth = depth
	return r
}

// WithLogger attaches l to r and returns r, so construction reads as
// runtime.New().WithLogger(l).
func (r *Runtime) WithLogger(l *logging.Logger) *Runtime {
	r.log = l
	return r
}

// WithMetrics attaches m to r and returns r.
func (r *Runtime) WithMetrics(m *metrics.Metrics) *Runtime {
	r.met = m
	return r
}

// WithTracer attaches tp to r and returns r. Every Eval thereafter is
// wrapped in an "eval" span with "compile" and "execute" children, so a
// slow top-level expression can be attributed to the Emitter or the
// Processor.
func (r *Runtime) WithTracer(tp *tracing.TracerProvider) *Runtime {
	r.tracer = tp
	return r
}

func (r *Runtime) debugf(cl *logging.ContextLogger, msg string, fields map[string]interface{}) {
	if cl == nil {
		return
	}
	cl.DebugWithFields(msg, fields)
}

func (r *Runtime) warnf(cl *logging.ContextLogger, msg string, fields map[string]interface{}) {
	if cl == nil {
		return
	}
	cl.WarnWithFields(msg, fields)
}

func (r *Runtime) recordEval(outcome string, elapsed time.Duration) {
	if r.met == nil {
		return
	}
	r.met.RecordEval(outcome, elapsed)
}

// withChildSpan runs fn under a child span named name when tracing is
// attached, or just runs fn when it isn't.
func (r *Runtime) withChildSpan(ctx context.Context, name string, fn func() error) error {
	if r.tracer == nil {
		return fn()
	}
	_, span := r.tracer.GetTracer("boba/runtime").Start(ctx, name)
	defer span.End()

	err := fn()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Eval compiles and executes a single top-level AST expression, returning
// the resulting Value. On a compile error, no bytecode from the failed
// expression survives: the write cursor is rewound to its pre-compile
// mark. On a runtime fault, the value and call stacks are cleared but the bytecode
// of any already-completed `def`s remains valid, and Eval returns the
// fault as an error.
func (r *Runtime) Eval(node *ast.Node) (vm.Value, error) {
	ctx := context.Background()
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.GetTracer("boba/runtime").Start(ctx, "eval")
		span.SetAttributes(attribute.String("boba.node_kind", node.Kind.String()))
		defer span.End()
	}

	var cl *logging.ContextLogger
	if r.log != nil {
		cl = r.log.WithEvalID(logging.NewEvalID())
	}

	start := time.Now()
	mark := r.proc.Cursor()
	closuresBefore := r.proc.ClosuresCreated

	compileErr := r.withChildSpan(ctx, "compile", func() error {
		return r.emit.Emit(node)
	})
	if compileErr != nil {
		r.proc.Rewind(mark)
		r.warnf(cl, "compile error", map[string]interface{}{"kind": node.Kind.String(), "error": compileErr.Error()})
		r.recordEval("compile_error", time.Since(start))
		return vm.NilValue, compileErr
	}
	if r.met != nil {
		r.met.RecordBytecodeWritten(r.proc.Cursor() - mark)
	}

	r.proc.PrepareEval(mark)
	runErr := r.withChildSpan(ctx, "execute", func() error {
		return r.proc.Run()
	})
	if runErr != nil {
		r.warnf(cl, "runtime fault aborted top-level expression", map[string]interface{}{"kind": node.Kind.String(), "error": runErr.Error()})
		r.recordEval("runtime_fault", time.Since(start))
		return vm.NilValue, runErr
	}

	if created := r.proc.ClosuresCreated - closuresBefore; created > 0 && r.met != nil {
		for i := 0; i < created; i++ {
			r.met.RecordClosureCreated()
		}
	}

	result := r.proc.Top()
	r.debugf(cl, "eval", map[string]interface{}{
		"kind":       node.Kind.String(),
		"result":     result.ToString(),
		"elapsed_us": time.Since(start).Microseconds(),
	})
	r.recordEval("ok", time.Since(start))

	// Throwaway-code reclamation: bytecode for anything but a top-level
	// def can never be referenced again (nothing jumps backward into it,
	// and no closure captures it since closures copy their own body out
	// at CreateClosure time), so its buffer space is reclaimed.
	if node.Head() != "def" {
		r.proc.ClearValueStack()
		r.proc.Rewind(mark)
	}

	return result, nil
}

// Disassemble compiles node without executing it and returns the
// resulting instruction bytes, for introspection (see pkg/decompiler).
// The compiled bytes are immediately rewound out of the shared buffer,
// same as a throwaway top-level expression.
func (r *Runtime) Disassemble(node *ast.Node) ([]byte, error) {
	mark := r.proc.Cursor()
	if err := r.emit.Emit(node); err != nil {
		r.proc.Rewind(mark)
		return nil, err
	}
	out := make([]byte, r.proc.Cursor()-mark)
	copy(out, r.proc.Instructions[mark:])
	r.proc.Rewind(mark)
	return out, nil
}
