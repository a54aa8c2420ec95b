package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestComputeStableAcrossOrdering(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.md", "directive text")
	b := writeFile(t, dir, "b.json", `{"mode":"hard"}`)

	f1, err := Compute([]string{a, b})
	require.NoError(t, err)
	f2, err := Compute([]string{b, a})
	require.NoError(t, err)

	assert.Equal(t, f1, f2)
	assert.True(t, strings.HasPrefix(f1, Prefix))
}

func TestComputeJSONWhitespaceInsensitive(t *testing.T) {
	dir := t.TempDir()
	compact := writeFile(t, dir, "c.json", `{"b":1,"a":2}`)
	f1, err := Compute([]string{compact})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(compact, []byte("{\n  \"a\": 2,\n  \"b\": 1\n}\n"), 0o644))
	f2, err := Compute([]string{compact})
	require.NoError(t, err)

	assert.Equal(t, f1, f2)
}

func TestComputeMissingFileSentinel(t *testing.T) {
	dir := t.TempDir()
	present := writeFile(t, dir, "present.md", "x")
	missing := filepath.Join(dir, "absent.md")

	withMissing, err := Compute([]string{present, missing})
	require.NoError(t, err)
	withoutMissing, err := Compute([]string{present})
	require.NoError(t, err)

	assert.NotEqual(t, withMissing, withoutMissing)
}

func TestComputeContentSensitive(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "d.md", "one")
	f1, err := Compute([]string{p})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("two"), 0o644))
	f2, err := Compute([]string{p})
	require.NoError(t, err)

	assert.NotEqual(t, f1, f2)
}
