package runtime_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jstankevicius/boba/pkg/ast"
	"github.com/jstankevicius/boba/pkg/lexer"
	"github.com/jstankevicius/boba/pkg/logging"
	"github.com/jstankevicius/boba/pkg/metrics"
	"github.com/jstankevicius/boba/pkg/parser"
	"github.com/jstankevicius/boba/pkg/runtime"
	"github.com/jstankevicius/boba/pkg/tracing"
)

func parseOne(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks := lexer.Tokenize(src)
	n, err := parser.New(toks).ParseOne()
	require.NoError(t, err)
	require.NotNil(t, n)
	return n
}

func evalAll(t *testing.T, r *runtime.Runtime, sources []string) []string {
	t.Helper()
	var results []string
	for _, src := range sources {
		v, err := r.Eval(parseOne(t, src))
		require.NoError(t, err, "evaluating %q", src)
		results = append(results, v.ToString())
	}
	return results
}

func TestScenario1Add(t *testing.T) {
	r := runtime.New()
	v, err := r.Eval(parseOne(t, "(+ 2 3)"))
	require.NoError(t, err)
	assert.Equal(t, "5", v.ToString())
}

func TestScenario2SubBinary(t *testing.T) {
	r := runtime.New()
	v, err := r.Eval(parseOne(t, "(- 1 3)"))
	require.NoError(t, err)
	assert.Equal(t, "-2", v.ToString())
}

func TestScenario3SubUnary(t *testing.T) {
	r := runtime.New()
	v, err := r.Eval(parseOne(t, "(- 2)"))
	require.NoError(t, err)
	assert.Equal(t, "-2", v.ToString())
}

func TestScenario4Nested(t *testing.T) {
	r := runtime.New()
	v, err := r.Eval(parseOne(t, "(+ (/ 12 4) (- 3 2))"))
	require.NoError(t, err)
	assert.Equal(t, "4", v.ToString())
}

func TestScenario5DefAndLookup(t *testing.T) {
	r := runtime.New()
	results := evalAll(t, r, []string{"(def a 2)", "(def b 3)", "(+ a b)"})
	assert.Equal(t, []string{"nil", "nil", "5"}, results)
}

func TestScenario6If(t *testing.T) {
	r := runtime.New()
	v1, err := r.Eval(parseOne(t, "(if (= 2 2) 1 0)"))
	require.NoError(t, err)
	assert.Equal(t, "1", v1.ToString())

	v2, err := r.Eval(parseOne(t, "(if (>= 2 3) 1 0)"))
	require.NoError(t, err)
	assert.Equal(t, "0", v2.ToString())
}

func TestScenario7RecursiveClosure(t *testing.T) {
	r := runtime.New()
	results := evalAll(t, r, []string{
		"(def f (fn (n) (if (= n 0) 1 (* n (f (- n 1))))))",
		"(f 5)",
	})
	assert.Equal(t, []string{"nil", "120"}, results)
}

func TestScenario8LexicalCapture(t *testing.T) {
	r := runtime.New()
	results := evalAll(t, r, []string{
		"(def mk (fn (x) (fn (y) (+ x y))))",
		"(def add3 (mk 3))",
		"(add3 4)",
	})
	assert.Equal(t, []string{"nil", "nil", "7"}, results)
}

// TestLexicalCaptureByValue checks that binding another x with the same
// name after a closure captures x has no effect on the closure's own call.
// A second top-level def of x is a redefinition error, so the new x is a
// parameter of a function that calls the closure.
func TestLexicalCaptureByValue(t *testing.T) {
	r := runtime.New()
	evalAll(t, r, []string{
		"(def x 1)",
		"(def get-x (fn () x))",
	})
	v1, err := r.Eval(parseOne(t, "(get-x)"))
	require.NoError(t, err)
	assert.Equal(t, "1", v1.ToString())

	evalAll(t, r, []string{"(def with-x (fn (x) (get-x)))"})

	v2, err := r.Eval(parseOne(t, "(with-x 99)"))
	require.NoError(t, err)
	assert.Equal(t, "1", v2.ToString(), "closure must keep its captured value, not see the caller's x")
}

// TestFaultRecovery checks that a faulting top-level expression does not
// prevent a later, well-formed expression from evaluating correctly.
func TestFaultRecovery(t *testing.T) {
	r := runtime.New()
	_, err := r.Eval(parseOne(t, "(+ 1 undefined-name)"))
	require.Error(t, err)

	v, err := r.Eval(parseOne(t, "(+ 1 2)"))
	require.NoError(t, err)
	assert.Equal(t, "3", v.ToString())
}

// TestUndefinedSymbolIsCompileError checks the undefined-symbol path
// raises the compile-error kind, not a runtime fault.
func TestUndefinedSymbolIsCompileError(t *testing.T) {
	r := runtime.New()
	_, err := r.Eval(parseOne(t, "(+ 1 nope)"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined symbol")
}

// TestRedefinitionFails checks that def of an already-bound name in the
// same scope is a compile error.
func TestRedefinitionFails(t *testing.T) {
	r := runtime.New()
	evalAll(t, r, []string{"(def a 1)"})
	_, err := r.Eval(parseOne(t, "(def a 2)"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redefinition")
}

// TestEvalLogsDebugAndWarn checks the Runtime writes a Debug entry for a
// successful eval and a Warn entry when a compile error aborts one.
func TestEvalLogsDebugAndWarn(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.LoggerConfig{
		MinLevel: logging.DEBUG,
		Outputs:  []io.Writer{&buf},
	})
	require.NoError(t, err)
	defer logger.Close()

	r := runtime.New().WithLogger(logger)
	_, err = r.Eval(parseOne(t, "(+ 1 2)"))
	require.NoError(t, err)

	_, err = r.Eval(parseOne(t, "(+ 1 nope)"))
	require.Error(t, err)

	logger.Sync()
	out := buf.String()
	assert.Contains(t, out, "[DEBUG]")
	assert.Contains(t, out, "[WARN]")
}

// TestEvalRecordsMetrics checks a successful eval and a closure-creating
// eval each register under the boba_* metric families.
func TestEvalRecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics(metrics.DefaultConfig())
	r := runtime.New().WithMetrics(m)

	_, err := r.Eval(parseOne(t, "(+ 1 2)"))
	require.NoError(t, err)
	evalAll(t, r, []string{"(def id (fn (x) x))"})
	_, err = r.Eval(parseOne(t, "(id 1)"))
	require.NoError(t, err)

	families, err := m.GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["boba_eval_total"])
	assert.True(t, names["boba_eval_duration_seconds"])
	assert.True(t, names["boba_closures_created_total"])
	assert.True(t, names["boba_bytecode_bytes_written_total"])
}

// TestEvalEmitsCompileAndExecuteSpans checks a WithTracer'd Runtime
// records one "eval" span with "compile" and "execute" children per
// top-level expression.
func TestEvalEmitsCompileAndExecuteSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	r := runtime.New().WithTracer(tracing.FromSDK(provider))

	_, err := r.Eval(parseOne(t, "(+ 1 2)"))
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "eval")
	assert.Contains(t, names, "compile")
	assert.Contains(t, names, "execute")
}

// TestDisassembleRoundTrip checks Disassemble compiles without leaving
// any trace in the shared instruction buffer.
func TestDisassembleRoundTrip(t *testing.T) {
	r := runtime.New()
	code, err := r.Disassemble(parseOne(t, "(+ 1 2)"))
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	v, err := r.Eval(parseOne(t, "(+ 1 2)"))
	require.NoError(t, err)
	assert.Equal(t, "3", v.ToString())
}
