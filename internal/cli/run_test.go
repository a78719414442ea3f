package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRunGenerate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "q.rqg", `[:generate
	  :iterator [(iter:Split "a,b" ",") ?x]
	  :triples [[(iri (concat "http://ex.org/" ?x)) <http://ex.org/name> ?x]]]`)

	out, _, err := execute(t, "run", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, out, `<http://ex.org/a> <http://ex.org/name> "a" .`)
}

func TestRunGenerateAsTable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "q.rqg", `[:generate :triples [[<http://ex.org/s> <http://ex.org/p> "o"]]]`)

	out, _, err := execute(t, "run", "--format", "table", path)
	require.NoError(t, err)
	assert.Contains(t, out, "_1 rows_")
}

func TestRunSelect(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "q.rqg", `[:select :iterator [(iter:Split "x,y,z" ",") ?v]]`)

	out, _, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "_3 rows_")
}

func TestRunTemplate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "q.rqg", `[:template :iterator [(iter:Split "a,b" ",") ?x] :template [?x] :separator ", "]`)

	out, _, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Equal(t, "a, b\n", out)
}

func TestRunFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "q.rqg", `[:template :template ["x"]]`)

	_, _, err := execute(t, "run", "--format", "nt", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not apply")

	_, _, err = execute(t, "run", "--format", "xml", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRunResolvesSubQueriesFromMapping(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "thing.rqg", `[:generate [?id] :triples [[(iri (concat "http://ex.org/" ?id)) a <http://ex.org/Thing>]]]`)
	mapping := writeFile(t, dir, "mapping.yaml", "locations:\n  - name: http://ex.org/thing\n    path: thing.rqg\n")
	path := writeFile(t, dir, "q.rqg", `[:generate
	  :iterator [(iter:Split "1,2" ",") ?id]
	  :sub (generate <http://ex.org/thing> ?id)]`)

	out, _, err := execute(t, "run", "--base", dir, "--mapping", mapping, path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestRunReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "config.yaml", "debug-template: true\n")
	path := writeFile(t, dir, "q.rqg", `[:template :template ["a" (ucase ?missing)]]`)

	out, _, err := execute(t, "run", "--config", config, path)
	require.NoError(t, err)
	assert.Contains(t, out, "a[error: ")
}

func TestRunEnvironment(t *testing.T) {
	t.Setenv("GENERATE_LOG_LEVEL", "loud")
	dir := t.TempDir()
	path := writeFile(t, dir, "q.rqg", `[:generate]`)

	_, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRunMissingFile(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "none.rqg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read query")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.rqg", `[:generate :triples [[<http://ex.org/s> <http://ex.org/p> "o"]]]`)
	bad := writeFile(t, dir, "bad.rqg", `[:select :triples [[<http://ex.org/s> <http://ex.org/p> 1]]]`)

	out, _, err := execute(t, "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, _, err = execute(t, "check", "-v", good)
	require.NoError(t, err)
	assert.Contains(t, out, "GENERATE")
	assert.Regexp(t, `extensions: [1-9]\d* functions, [1-9]\d* iterators`, out)

	_, _, err = execute(t, "check", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "triples template in a SELECT")
}
