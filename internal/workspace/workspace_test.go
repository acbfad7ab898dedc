package workspace

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdburn/internal/logging"
)

func newTestWorkspace(t *testing.T) (*Workspace, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	w, err := New(fs, "/work", logging.Discard())
	require.NoError(t, err)
	return w, fs
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), "", logging.Discard())
	assert.Error(t, err)
}

func TestImagePathStaysInside(t *testing.T) {
	w, _ := newTestWorkspace(t)
	assert.Equal(t, filepath.Join("/work", "images", "os.img.gz"), w.ImagePath("os.img.gz"))
	assert.Equal(t, filepath.Join("/work", "images", "passwd"), w.ImagePath("../../etc/passwd"))
}

func TestWriteScript(t *testing.T) {
	w, fs := newTestWorkspace(t)

	path, err := w.WriteScript("format_disk.txt", "select disk 1\nclean\n")
	require.NoError(t, err)

	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "select disk 1\nclean\n", string(b))
}

func TestDiagnosticRoundTrip(t *testing.T) {
	w, _ := newTestWorkspace(t)

	got, err := w.ReadDiagnostic()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = w.WriteDiagnostic("BURN_ERROR", "dd: Input/output error")
	require.NoError(t, err)

	got, err = w.ReadDiagnostic()
	require.NoError(t, err)
	assert.Contains(t, got, "category: BURN_ERROR")
	assert.Contains(t, got, "dd: Input/output error")
}

func TestClean(t *testing.T) {
	w, fs := newTestWorkspace(t)
	require.NoError(t, w.EnsureImageDir())
	require.NoError(t, afero.WriteFile(fs, w.ImagePath("a.img"), []byte("x"), 0o644))
	_, err := w.WriteScript("s.txt", "x")
	require.NoError(t, err)

	require.NoError(t, w.Clean())

	entries, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	assert.Empty(t, entries)
	ok, _ := afero.DirExists(fs, "/work")
	assert.True(t, ok)
}
