package license

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "license.json"))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove(), ErrNotFound)
}

func TestStoreSaveLoadIdentical(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind string
	}{
		{"signed", `{"token":"aaa.bbb.ccc"}`, SourceSigned},
		{"flat legacy", flatLegacyFile, SourceLegacy},
		{"nested legacy", nestedLegacyFile, SourceLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "license.json")
			s := NewStore(path)

			f, err := ParseFile([]byte(tt.raw))
			require.NoError(t, err)
			require.NoError(t, s.Save(f))

			onDisk, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, string(onDisk))

			loaded, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, loaded.Kind())
			assert.Equal(t, f.Token, loaded.Token)
			assert.Equal(t, []byte(tt.raw), loaded.Raw)

			if runtime.GOOS != "windows" {
				info, err := os.Stat(path)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
			}
		})
	}
}

func TestStoreSaveReplacesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "license.json")
	s := NewStore(path)

	require.NoError(t, s.Save(&File{Token: "first.token.value"}))
	require.NoError(t, s.Save(&File{Token: "second.token.value"}))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "second.token.value", loaded.Token)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "license.json", entries[0].Name())

	require.NoError(t, s.Remove())
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSaveIntoUnwritableLocation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewStore(filepath.Join(blocker, "license.json"))
	err := s.Save(&File{Token: "a.b.c"})
	assert.ErrorIs(t, err, ErrIO)

	var ioErr *IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestStoreLoadUnreadable(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrIO)
}

func TestParseFile(t *testing.T) {
	t.Run("token wins over legacy fields", func(t *testing.T) {
		raw := `{"token":" x.y.z ","email":"a@b.c","expires_at":"2025-01-01","signature":"00"}`
		f, err := ParseFile([]byte(raw))
		require.NoError(t, err)
		assert.True(t, f.Signed())
		assert.Equal(t, "x.y.z", f.Token)
		assert.Nil(t, f.Legacy)
	})

	t.Run("blank token falls back to legacy", func(t *testing.T) {
		f, err := ParseFile([]byte(`{"token":"","email":"a@b.c","expires_at":"2025-01-01","signature":"00"}`))
		require.NoError(t, err)
		assert.Equal(t, SourceLegacy, f.Kind())
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseFile([]byte("garbage"))
		assert.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("encode without raw", func(t *testing.T) {
		data, err := (&File{Token: "a.b.c"}).Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"token":"a.b.c"}`, string(data))

		_, err = (&File{}).Encode()
		assert.Error(t, err)
	})
}
