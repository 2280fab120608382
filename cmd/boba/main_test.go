package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstankevicius/boba/pkg/runtime"
)

func TestNewRootCmdHasExpectedSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["repl"])
	assert.True(t, names["disasm"])
}

func TestEvalProgramPrintsNonDefResults(t *testing.T) {
	rt := runtime.New()
	var buf bytes.Buffer
	restore := redirectStdout(t, &buf)
	defer restore()

	err := evalProgram(rt, "(def x 5) (+ x 1)")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "6")
	assert.NotContains(t, buf.String(), "5\n")
}

func TestEvalProgramReportsCompileErrorsButKeepsGoing(t *testing.T) {
	rt := runtime.New()
	var buf bytes.Buffer
	restore := redirectStdout(t, &buf)
	defer restore()

	err := evalProgram(rt, "(+ 1 nope)")
	require.NoError(t, err, "a compile error on one expression does not abort evalProgram")
}

func TestHistoryPathEmptyHomeYieldsEmptyPath(t *testing.T) {
	assert.Equal(t, "", historyPath(""))
	assert.Equal(t, "/home/bob/.boba_history", historyPath("/home/bob"))
}

func TestSetupAmbientWithNoConfigFileDisablesMetricsAndTracing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BOBA_CONFIG", filepath.Join(dir, "missing.yaml"))

	amb := setupAmbient(ambientOverrides{})
	defer amb.shutdown()

	assert.Nil(t, amb.met)
	assert.Nil(t, amb.tracer)
	rt := amb.newRuntime()
	assert.NotNil(t, rt)
}

func TestSetupAmbientMetricsAddrOverrideEnablesMetrics(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BOBA_CONFIG", filepath.Join(dir, "missing.yaml"))

	amb := setupAmbient(ambientOverrides{metricsAddr: ":0"})
	defer amb.shutdown()

	assert.NotNil(t, amb.met)
}

// redirectStdout swaps os.Stdout for the write end of a pipe that copies
// into buf, restoring the original on the returned func. evalProgram and
// runDisasm print straight to os.Stdout via fmt.Println/Fprintln(w,...).
func redirectStdout(t *testing.T, buf *bytes.Buffer) func() {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w

	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	return func() {
		w.Close()
		os.Stdout = orig
		<-done
	}
}
