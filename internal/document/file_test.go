package document

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForChange(t *testing.T, f *File) {
	t.Helper()
	select {
	case <-f.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change")
	}
}

func TestCreateReadWrite(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(dir, "foo@ns.yaml", []byte("kind: Deployment\n"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, filepath.Join(dir, "foo@ns.yaml"), f.Path())
	text, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "kind: Deployment\n", string(text))

	require.NoError(t, f.Write([]byte("kind: Service\n")))
	text, err = os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "kind: Service\n", string(text))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(dir, "scratch.yaml", []byte("a: 1\n"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Rename("foo@ns.yaml"))
	assert.Equal(t, filepath.Join(dir, "foo@ns.yaml"), f.Path())
	_, err = os.Stat(filepath.Join(dir, "scratch.yaml"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bar@ns.yaml"), []byte("b: 2\n"), 0o644))
	assert.Error(t, f.Rename("bar@ns.yaml"))
	assert.Error(t, f.Rename("../escape.yaml"))
	assert.NoError(t, f.Rename("foo@ns.yaml"))
}

func TestExternalEditIsReported(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(dir, "foo@ns.yaml", []byte("a: 1\n"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, os.WriteFile(f.Path(), []byte("a: 2\n"), 0o644))
	waitForChange(t, f)
}

func TestOwnWritesAreNotReported(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(dir, "foo@ns.yaml", []byte("a: 1\n"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Write([]byte("a: 2\n")))
	select {
	case <-f.Changes():
		t.Fatal("own write reported as a change")
	case <-time.After(5 * debounceDelay):
	}
}

func TestEditAfterRenameIsReported(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(dir, "scratch.yaml", []byte("a: 1\n"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Rename("foo@ns.yaml"))
	require.NoError(t, os.WriteFile(f.Path(), []byte("a: 3\n"), 0o644))
	waitForChange(t, f)
}
