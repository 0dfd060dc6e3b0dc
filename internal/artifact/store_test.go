package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anveshgarg/courtscout/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "pdfs"))
	require.NoError(t, err)
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("case_1.pdf", []byte("%PDF-1.4 fake")))

	data, err := store.Load("case_1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), data)
}

func TestSaveReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("case_1.pdf", []byte("old")))
	require.NoError(t, store.Save("case_1.pdf", []byte("new")))

	data, err := store.Load("case_1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	_, err := newTestStore(t).Load("never_saved.pdf")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTraversalFilenamesRejected(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{
		"",
		"../escape.pdf",
		"..",
		"dir/inner.pdf",
		`dir\inner.pdf`,
		"a/../../etc/passwd",
	} {
		assert.ErrorIsf(t, store.Save(name, []byte("x")), models.ErrInvalidArtifact, "save %q", name)
		_, err := store.Load(name)
		assert.ErrorIsf(t, err, models.ErrInvalidArtifact, "load %q", name)
	}
}
