package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryAdapter_PicksOnlyProcessableFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("img"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.PDF"), []byte("pdf"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))

	docs, err := (&DirectoryAdapter{Dir: dir}).Documents()
	require.NoError(t, err)

	require.Len(t, docs, 2)
	names := []string{docs[0].Filename, docs[1].Filename}
	assert.ElementsMatch(t, []string{"a.jpg", "b.PDF"}, names)
	for _, d := range docs {
		assert.Equal(t, "upload", d.OriginalInfo)
		assert.NotEmpty(t, d.Bytes)
		assert.Nil(t, d.Email)
	}
}

func TestDirectoryAdapter_MissingDirectory(t *testing.T) {
	_, err := (&DirectoryAdapter{Dir: "/does/not/exist"}).Documents()
	assert.Error(t, err)
}
