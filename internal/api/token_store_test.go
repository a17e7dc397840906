package api

import (
	"os"
	"path/filepath"
	"testing"

	"unit-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")

	store, err := NewFileTokenStore(path)
	require.NoError(t, err)
	assert.Equal(t, models.TokenPair{}, store.Load())

	pair := models.TokenPair{Access: "a", Refresh: "r"}
	require.NoError(t, store.Save(pair))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := NewFileTokenStore(path)
	require.NoError(t, err)
	assert.Equal(t, pair, reopened.Load())

	require.NoError(t, reopened.Clear())
	assert.Equal(t, models.TokenPair{}, reopened.Load())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// 重复 Clear 不报错
	require.NoError(t, reopened.Clear())
}

func TestFileTokenStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileTokenStore(path)
	assert.Error(t, err)

	_, err = NewFileTokenStore("")
	assert.Error(t, err)
}
