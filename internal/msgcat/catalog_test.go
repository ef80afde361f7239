package msgcat

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedRender(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	got, err := c.Render("room.not_found", map[string]any{"Code": "ABC234"})
	require.NoError(t, err)
	require.Contains(t, got, "ABC234")

	_, err = c.Render("room.not_found", map[string]any{})
	require.Error(t, err, "missing key")
	_, err = c.Render("nope", nil)
	require.Error(t, err, "template not found")
}

func TestTextFallsBackToKey(t *testing.T) {
	c := Default()
	require.Equal(t, "no.such.key", c.Text("no.such.key", nil))
	got := c.Text("room.stale", nil)
	require.NotEmpty(t, got)
	require.NotEqual(t, "room.stale", got)
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("room:\n  stale: \"gone\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))
	c, err := New(dir)
	require.NoError(t, err)
	require.Equal(t, "gone", c.Text("room.stale", nil))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("room:\n  stale: \"again\"\n"), 0o600))
	_, err = New(dir)
	require.ErrorContains(t, err, "duplicate override key")
}

func TestRejectsNonStringLeaves(t *testing.T) {
	_, err := parseYAMLToFlat([]byte("a:\n  b: 3\n"))
	require.Error(t, err)
}

func TestKeysSorted(t *testing.T) {
	keys := Default().Keys()
	require.True(t, sort.StringsAreSorted(keys), "keys=%v", keys)
}
