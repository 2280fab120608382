package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jstankevicius/boba/pkg/runtime"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	r := &REPL{
		rt:    runtime.New(),
		out:   &buf,
		newRT: runtime.New,
	}
	return r, &buf
}

func TestIsMeta(t *testing.T) {
	r, _ := newTestREPL(t)
	assert.True(t, r.isMeta(":quit"))
	assert.False(t, r.isMeta("(+ 1 2)"))
}

func TestEvalLinePrintsResult(t *testing.T) {
	r, buf := newTestREPL(t)
	r.evalLine("(+ 2 3)")
	assert.Equal(t, "5\n", buf.String())
}

func TestEvalLinePrintsErrorWithoutPanicking(t *testing.T) {
	r, buf := newTestREPL(t)
	r.evalLine("(+ 1 nope)")
	assert.Contains(t, buf.String(), "undefined symbol")
}

func TestHandleMetaQuit(t *testing.T) {
	r, _ := newTestREPL(t)
	assert.True(t, r.handleMeta(":quit"))
	assert.True(t, r.handleMeta(":q"))
	assert.False(t, r.handleMeta(":reset"))
}

func TestHandleMetaResetReplacesRuntime(t *testing.T) {
	r, buf := newTestREPL(t)
	r.evalLine("(def a 1)")
	r.handleMeta(":reset")
	assert.Contains(t, buf.String(), "runtime reset")

	buf.Reset()
	r.evalLine("a")
	assert.Contains(t, buf.String(), "undefined symbol", "reset should drop prior bindings")
}

func TestDisasmPrintsListing(t *testing.T) {
	r, buf := newTestREPL(t)
	r.disasm("(+ 1 2)")
	out := buf.String()
	assert.True(t, strings.Contains(out, "PushInt"))
	assert.True(t, strings.Contains(out, "Add"))
}
