package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEvaluate(t *testing.T) {
	out, err := execute(t, "evaluate", "[1, 2, 3]")
	require.NoError(t, err)
	assert.Equal(t, "Array(3)\n", out)

	out, err = execute(t, "evaluate", "6*7")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	out, err = execute(t, "evaluate", "--json", `"hi"`)
	require.NoError(t, err)
	assert.Contains(t, out, `"hi"`)

	_, err = execute(t, "evaluate", "throw new Error('boom')")
	assert.Error(t, err)
}

func TestTree(t *testing.T) {
	out, err := execute(t, "tree", "--depth", "2", `({a: 1, b: {c: [true]}})`)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "  a: 1", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "  b: "), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "    c: "), lines[3])
	for _, l := range lines {
		assert.NotContains(t, l, "      ", "depth 2 must not print a third level")
	}
}

func TestTreeStopsAtCycles(t *testing.T) {
	out, err := execute(t, "tree", "--depth", "6", `(() => { const o = {}; o.self = o; return o })()`)
	require.NoError(t, err)

	// the repeated object becomes a single ellipsis leaf
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "  self: Object", lines[1])
	assert.Equal(t, "    Object", lines[2])
}

func TestCopy(t *testing.T) {
	out, err := execute(t, "copy", `({list: [1, "two"], flag: false})`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"list": [1, "two"], "flag": false}`, out)

	out, err = execute(t, "copy", "--depth", "1", `({a: {b: {c: 1}}})`)
	require.NoError(t, err)
	assert.Contains(t, out, "[[ Truncated ]]")
}

func TestRecordThenReplay(t *testing.T) {
	expr := `({user: {name: "ada", langs: ["js", "go"]}})`
	path := filepath.Join(t.TempDir(), "state.cbor.lz4")

	out, err := execute(t, "record", "--out", path, expr)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded 1 roots")

	live, err := execute(t, "copy", expr)
	require.NoError(t, err)
	replayed, err := execute(t, "copy", "--snapshot", path, expr)
	require.NoError(t, err)
	assert.Equal(t, live, replayed)
}

func TestRecordRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "record", "--out", filepath.Join(t.TempDir(), "state.xml"), "1")
	assert.Error(t, err)
}

func TestBackendFlagsAreExclusive(t *testing.T) {
	_, err := execute(t, "evaluate", "--snapshot", "a.json", "--remote", "http://localhost:1", "1")
	assert.ErrorContains(t, err, "mutually exclusive")
}
