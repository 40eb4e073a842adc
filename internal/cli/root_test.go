package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfate111/HDrepresentation/pkg/fsprog"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FSPROG_LOG_LEVEL", "error")
	t.Setenv("FSPROG_OUTPUT_FORMAT", "")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "fsprog 0.1.0\n", out)
}

func TestGenRenderInspectConvert(t *testing.T) {
	dir := t.TempDir()
	progPath := filepath.Join(dir, "prog.json")
	srcPath := filepath.Join(dir, "prog.c")

	_, err := run(t, "gen", "--seed", "5", "--max-syscalls", "10", "-o", progPath, "--source", srcPath)
	require.NoError(t, err)

	prog, err := fsprog.Load(progPath)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(prog.Syscalls()), 10)

	src, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	rendered, err := run(t, "render", progPath)
	require.NoError(t, err)
	assert.Equal(t, string(src), rendered)

	outC := filepath.Join(dir, "again.c")
	_, err = run(t, "render", progPath, "-o", outC)
	require.NoError(t, err)
	again, err := os.ReadFile(outC)
	require.NoError(t, err)
	assert.Equal(t, src, again)

	yamlPath := filepath.Join(dir, "prog.yaml")
	_, err = run(t, "convert", progPath, yamlPath)
	require.NoError(t, err)
	fromYAML, err := run(t, "render", yamlPath)
	require.NoError(t, err)
	assert.Equal(t, string(src), fromYAML)

	summary, err := run(t, "inspect", yamlPath)
	require.NoError(t, err)
	assert.Contains(t, summary, "variables: ")
	assert.Contains(t, summary, "\tv0 fsprog.ByteBuffer kind=none\n")
	assert.True(t, strings.HasSuffix(summary, "check: ok\n"), summary)
}

func TestGenToStdoutIsDeterministic(t *testing.T) {
	a, err := run(t, "gen", "--seed", "11")
	require.NoError(t, err)
	b, err := run(t, "gen", "--seed", "11")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = fsprog.Decode([]byte(a), fsprog.FormatJSON)
	assert.NoError(t, err)
}

func TestCommandErrors(t *testing.T) {
	_, err := run(t, "render", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = run(t, "gen", "--backtrack-prob", "200")
	assert.Error(t, err)

	_, err = run(t, "convert", "only-one")
	assert.Error(t, err)
}
