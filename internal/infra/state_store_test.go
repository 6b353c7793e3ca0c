package infra

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// newTestStore creates an encrypted store in a temp directory for testing.
func newTestStore(t *testing.T) (*EncryptedStateStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewEncryptedStateStore(dataDir, key)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, dataDir
}

func TestEncryptedStateStore_Records(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T, s *EncryptedStateStore)
	}{
		{
			name: "missing record is not found",
			testFn: func(t *testing.T, s *EncryptedStateStore) {
				_, found, err := s.Get(domain.RecordSessionData)
				require.NoError(t, err)
				assert.False(t, found)
			},
		},
		{
			name: "put then get",
			testFn: func(t *testing.T, s *EncryptedStateStore) {
				require.NoError(t, s.Put(domain.RecordBlockData, []byte(`{"endTime":1}`)))
				value, found, err := s.Get(domain.RecordBlockData)
				require.NoError(t, err)
				require.True(t, found)
				assert.JSONEq(t, `{"endTime":1}`, string(value))
			},
		},
		{
			name: "put replaces",
			testFn: func(t *testing.T, s *EncryptedStateStore) {
				require.NoError(t, s.Put(domain.RecordSessionData, []byte(`{"active":true}`)))
				require.NoError(t, s.Put(domain.RecordSessionData, []byte(`{"active":false}`)))
				value, _, err := s.Get(domain.RecordSessionData)
				require.NoError(t, err)
				assert.JSONEq(t, `{"active":false}`, string(value))
			},
		},
		{
			name: "delete removes several and ignores missing",
			testFn: func(t *testing.T, s *EncryptedStateStore) {
				require.NoError(t, s.Put(domain.RecordSessionData, []byte(`{}`)))
				require.NoError(t, s.Put(domain.RecordBlockData, []byte(`{}`)))

				require.NoError(t, s.Delete(domain.RecordSessionData, domain.RecordBlockData, "unknown"))

				_, found, err := s.Get(domain.RecordSessionData)
				require.NoError(t, err)
				assert.False(t, found)
				_, found, err = s.Get(domain.RecordBlockData)
				require.NoError(t, err)
				assert.False(t, found)
			},
		},
		{
			name: "delete with no names is a no-op",
			testFn: func(t *testing.T, s *EncryptedStateStore) {
				assert.NoError(t, s.Delete())
			},
		},
		{
			name: "meta round trip and missing key",
			testFn: func(t *testing.T, s *EncryptedStateStore) {
				require.NoError(t, s.SetMeta("app_version", "1.2.0"))
				v, err := s.GetMeta("app_version")
				require.NoError(t, err)
				assert.Equal(t, "1.2.0", v)

				v, err = s.GetMeta("nope")
				require.NoError(t, err)
				assert.Empty(t, v)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			tt.testFn(t, s)
		})
	}
}

func TestEncryptedStateStore_Encryption(t *testing.T) {
	t.Run("database file holds no plaintext", func(t *testing.T) {
		s, dataDir := newTestStore(t)
		require.NoError(t, s.Put(domain.RecordBlockData, []byte(`{"blockedDomains":["youtube.com"]}`)))
		require.NoError(t, s.Close())

		raw, err := os.ReadFile(filepath.Join(dataDir, stateDBName))
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "youtube.com")
		assert.NotContains(t, string(raw), "blockedDomains")
	})

	t.Run("wrong key fails to open", func(t *testing.T) {
		dataDir := t.TempDir()
		key1, _ := GenerateKey()
		key2, _ := GenerateKey()

		s1, err := NewEncryptedStateStore(dataDir, key1)
		require.NoError(t, err)
		require.NoError(t, s1.Put(domain.RecordSessionData, []byte(`{}`)))
		s1.Close()

		_, err = NewEncryptedStateStore(dataDir, key2)
		assert.Error(t, err)
	})

	t.Run("records survive reopen", func(t *testing.T) {
		dataDir := t.TempDir()
		key, _ := GenerateKey()

		s1, err := NewEncryptedStateStore(dataDir, key)
		require.NoError(t, err)
		require.NoError(t, s1.Put(domain.RecordSessionData, []byte(`{"domain":"work"}`)))
		s1.Close()

		s2, err := NewEncryptedStateStore(dataDir, key)
		require.NoError(t, err)
		defer s2.Close()

		value, found, err := s2.Get(domain.RecordSessionData)
		require.NoError(t, err)
		require.True(t, found)
		assert.JSONEq(t, `{"domain":"work"}`, string(value))
	})
}

func TestOpenStateStore_ReusesKey(t *testing.T) {
	dataDir := t.TempDir()

	s1, err := OpenStateStore(dataDir)
	require.NoError(t, err)
	require.NoError(t, s1.Put(domain.RecordSessionData, []byte(`{"active":true}`)))
	require.NoError(t, s1.Close())

	s2, err := OpenStateStore(dataDir)
	require.NoError(t, err)
	defer s2.Close()

	_, found, err := s2.Get(domain.RecordSessionData)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, filepath.Join(dataDir, stateDBName), s2.Path())
}

func TestLoadOrCreateKey(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, path string)
		wantErr string
	}{
		{
			name:  "creates owner-only hex key",
			setup: func(t *testing.T, path string) {},
		},
		{
			name: "keeps existing key",
			setup: func(t *testing.T, path string) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600))
			},
		},
		{
			name: "rejects truncated key",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString([]byte("0123456789"))), 0600))
			},
			wantErr: "holds 10 bytes",
		},
		{
			name: "rejects garbage",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("%%%"), 0600))
			},
			wantErr: "decode key file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", stateKeyFile)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
			tt.setup(t, path)
			before, _ := os.ReadFile(path)

			key, err := loadOrCreateKey(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, stateKeySize)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			if len(before) > 0 {
				stored, err := hex.DecodeString(strings.TrimSpace(string(before)))
				require.NoError(t, err)
				assert.Equal(t, stored, key)
			}

			again, err := loadOrCreateKey(path)
			require.NoError(t, err)
			assert.Equal(t, key, again)
		})
	}
}

func TestLoadOrCreateKey_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", stateKeyFile)

	key, err := loadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, key, stateKeySize)
	assert.FileExists(t, path)
}

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, stateKeySize)
		assert.False(t, seen[string(key)], "duplicate key generated")
		seen[string(key)] = true
	}
}
