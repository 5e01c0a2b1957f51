package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider_StoreAndGet(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")
	provider := NewFileKeyProvider(dataDir)
	assert.Equal(t, filepath.Join(dataDir, "focustrack.key"), provider.Path())
	assert.False(t, provider.KeyExists())

	key, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, provider.StoreKey(key))
	assert.True(t, provider.KeyExists())
	assert.NoFileExists(t, provider.Path()+".tmp")

	info, err := os.Stat(provider.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := provider.GetKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestFileKeyProvider_GetKeyErrors(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		wantErr string
	}{
		{"missing file", nil, "failed to read key file"},
		{"not hex", ptr("zz-not-hex"), "failed to decode key"},
		{"short key", ptr("abcd"), "invalid key size"},
		{"empty file", ptr(""), "invalid key size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewFileKeyProvider(t.TempDir())
			if tt.content != nil {
				require.NoError(t, os.WriteFile(provider.Path(), []byte(*tt.content), 0600))
			}
			_, err := provider.GetKey()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestFileKeyProvider_StoreKeyRejectsWrongSize(t *testing.T) {
	provider := NewFileKeyProvider(t.TempDir())
	assert.ErrorContains(t, provider.StoreKey([]byte("tooshort")), "invalid key size")
	assert.False(t, provider.KeyExists())
}

func TestGenerateKey_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, keySize)
		assert.False(t, seen[string(key)], "duplicate key generated")
		seen[string(key)] = true
	}
}

func TestEnsureKey(t *testing.T) {
	t.Run("generates on first run", func(t *testing.T) {
		dir := t.TempDir()
		provider := NewFileKeyProvider(dir)

		key, err := EnsureKey(provider, filepath.Join(dir, DatabaseName))
		require.NoError(t, err)
		assert.Len(t, key, keySize)

		again, err := EnsureKey(provider, filepath.Join(dir, DatabaseName))
		require.NoError(t, err)
		assert.Equal(t, key, again)
	})

	t.Run("refuses to replace the key of an existing database", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, DatabaseName)
		require.NoError(t, os.WriteFile(dbPath, []byte("ciphertext"), 0600))

		provider := NewFileKeyProvider(dir)
		_, err := EnsureKey(provider, dbPath)
		assert.ErrorIs(t, err, ErrKeyMissing)
		assert.False(t, provider.KeyExists())
	})

	t.Run("does not overwrite a corrupt key", func(t *testing.T) {
		dir := t.TempDir()
		provider := NewFileKeyProvider(dir)
		require.NoError(t, os.WriteFile(provider.Path(), []byte("garbage"), 0600))

		_, err := EnsureKey(provider, filepath.Join(dir, DatabaseName))
		assert.Error(t, err)
		content, _ := os.ReadFile(provider.Path())
		assert.Equal(t, "garbage", string(content))
	})
}

func TestKeyLiteral(t *testing.T) {
	key := make([]byte, keySize)
	key[0], key[keySize-1] = 0xab, 0x01
	lit := keyLiteral(key)
	assert.True(t, strings.HasPrefix(lit, "x'ab"))
	assert.True(t, strings.HasSuffix(lit, "01'"))
	assert.Len(t, lit, 2*keySize+3)
}

func ptr(s string) *string { return &s }
