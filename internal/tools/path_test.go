package tools

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathGuardResolve(t *testing.T) {
	base := t.TempDir()
	g, err := NewPathGuard(base)
	require.NoError(t, err)

	got, err := g.Resolve("run-1/scene.py")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "run-1", "scene.py"), got)

	got, err = g.Resolve("a/../b")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "b"), got)

	_, err = g.Resolve("../outside")
	require.ErrorIs(t, err, ErrPathEscape)

	_, err = g.Resolve("a/../../outside")
	require.ErrorIs(t, err, ErrPathEscape)

	_, err = g.Resolve("/etc/passwd")
	require.ErrorIs(t, err, ErrAbsolutePath)

	_, err = g.Resolve(" ")
	require.Error(t, err)
}

func TestSegment(t *testing.T) {
	require.NoError(t, Segment("4f7c-run"))
	require.ErrorIs(t, Segment(".."), ErrPathEscape)
	require.Error(t, Segment("a/b"))
	require.Error(t, Segment(`a\b`))
	require.Error(t, Segment(""))
}
