package compare

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeDiff stands in for perceptualdiff: images match when their bytes do.
const fakeDiff = `#!/bin/sh
cp "$5" "$3"
if cmp -s "$4" "$5"; then
  exit 0
fi
echo "FAIL: Images are visibly different" >&2
exit 1
`

func newFakeComparator(t *testing.T) *Comparator {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "perceptualdiff")
	require.NoError(t, os.WriteFile(script, []byte(fakeDiff), 0o755))
	return New(zerolog.Nop(), script)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestBuildArgs(t *testing.T) {
	require.Equal(t,
		[]string{"--verbose", "--output", "d.png", "g.png", "a.png"},
		BuildArgs("g.png", "a.png", "d.png"))
	require.Equal(t,
		[]string{"--verbose", "g.png", "a.png"},
		BuildArgs("g.png", "a.png", ""))
}

func TestComparator_CompareAll(t *testing.T) {
	c := newFakeComparator(t)
	results := t.TempDir()
	golden := t.TempDir()

	writeFiles(t, results, map[string]string{
		"root.png":             "same",
		"Suite/match.png":      "same",
		"Suite/differs.png":    "actual",
		"Suite/no_golden.png":  "orphan",
		"Suite/notes.txt":      "ignored",
		"_diffs/Suite/old.png": "stale",
	})
	writeFiles(t, golden, map[string]string{
		"root.png":          "same",
		"Suite/match.png":   "same",
		"Suite/differs.png": "expected",
		"Suite/notes.txt":   "ignored too",
	})

	got, err := c.CompareAll(context.Background(), results, golden, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, got["Suite/differs.png"], "visibly different")

	require.FileExists(t, filepath.Join(results, DiffDirName, "Suite", "differs.png"))
	require.NoFileExists(t, filepath.Join(results, DiffDirName, "Suite", "old.png"))
	require.NoFileExists(t, filepath.Join(results, DiffDirName, "Suite", "no_golden.png"))

	again, err := c.CompareAll(context.Background(), results, golden, nil)
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestComparator_MissingGoldenNeverFails(t *testing.T) {
	c := newFakeComparator(t)
	results := t.TempDir()

	writeFiles(t, results, map[string]string{
		"a.png":       "x",
		"Suite/b.png": "y",
	})

	got, err := c.CompareAll(context.Background(), results, filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestComparator_Transform(t *testing.T) {
	c := newFakeComparator(t)
	results := t.TempDir()
	golden := t.TempDir()

	writeFiles(t, results, map[string]string{
		"opengl/iteration_0/Lighting/spot.png":  "good",
		"opengl/iteration_1/Lighting/point.png": "bad",
		"vulkan/iteration_0/Lighting/spot.png":  "good",
	})
	writeFiles(t, golden, map[string]string{
		"Lighting/spot.png":  "good",
		"Lighting/point.png": "good",
	})

	strip := func(dir string) string {
		parts := strings.Split(dir, "/")
		if len(parts) <= 2 {
			return "."
		}
		return strings.Join(parts[2:], "/")
	}

	got, err := c.CompareAll(context.Background(), results, golden, strip)
	require.NoError(t, err)
	require.Equal(t, []string{"opengl/iteration_1/Lighting/point.png"}, keys(got))
}

func TestComparator_Disabled(t *testing.T) {
	results := t.TempDir()
	writeFiles(t, results, map[string]string{"a.png": "x"})

	c := New(zerolog.Nop(), "")
	require.False(t, c.Enabled())

	got, err := c.CompareAll(context.Background(), results, t.TempDir(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoDirExists(t, filepath.Join(results, DiffDirName))

	match, msg := c.CompareImages(context.Background(), "g.png", "a.png", "")
	require.True(t, match)
	require.Empty(t, msg)
}

func TestComparator_ToolFailureIsMismatch(t *testing.T) {
	c := New(zerolog.Nop(), "/nonexistent/perceptualdiff")
	match, msg := c.CompareImages(context.Background(), "g.png", "a.png", "")
	require.False(t, match)
	require.Contains(t, msg, "failed to run perceptualdiff")
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
