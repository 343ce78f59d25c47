package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collab.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissingDocumentReturnsNilNil(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Load("nope")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	lang := "go"
	otp := "secret"
	require.NoError(t, s.Save(&Snapshot{ID: "doc1", Content: "hello", Language: &lang, OTP: &otp}))

	snap, err := s.Load("doc1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "hello", snap.Content)
	require.NotNil(t, snap.Language)
	assert.Equal(t, "go", *snap.Language)
	require.NotNil(t, snap.OTP)
	assert.Equal(t, "secret", *snap.OTP)
}

func TestSaveUpsertsOnConflict(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Snapshot{ID: "doc1", Content: "v1"}))
	require.NoError(t, s.Save(&Snapshot{ID: "doc1", Content: "v2"}))

	snap, err := s.Load("doc1")
	require.NoError(t, err)
	assert.Equal(t, "v2", snap.Content)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteRemovesDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Snapshot{ID: "doc1", Content: "v1"}))
	require.NoError(t, s.Delete("doc1"))

	snap, err := s.Load("doc1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}
