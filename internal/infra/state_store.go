package infra

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // registers the sqlite3 (SQLCipher) driver

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	stateDBName  = "state.db"
	stateKeyFile = ".state_key"
	stateKeySize = 32 // 256-bit SQLCipher key
)

// EncryptedStateStore implements domain.StateStore using a SQLCipher
// encrypted SQLite database.
type EncryptedStateStore struct {
	db     *sql.DB
	dbPath string
}

// OpenStateStore opens the store in dataDir. The first call creates the key
// file next to the database.
func OpenStateStore(dataDir string) (*EncryptedStateStore, error) {
	key, err := loadOrCreateKey(filepath.Join(dataDir, stateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("state store key: %w", err)
	}
	return NewEncryptedStateStore(dataDir, key)
}

// GenerateKey returns a random store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, stateKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// loadOrCreateKey reads the hex key at path. A missing file gets a fresh key,
// created with O_EXCL so two daemons starting together end up on one key.
func loadOrCreateKey(path string) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		key, err := readKeyFile(path)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		if key, err = GenerateKey(); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create key file: %w", err)
		}
		_, werr := f.WriteString(hex.EncodeToString(key))
		if err := errors.Join(werr, f.Close()); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("key file %s was removed while opening", path)
}

func readKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key file: %w", err)
	}
	if len(key) != stateKeySize {
		return nil, fmt.Errorf("key file holds %d bytes, want %d", len(key), stateKeySize)
	}
	return key, nil
}

// NewEncryptedStateStore opens (or creates) the encrypted state database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStateStore(dataDir string, key []byte) (*EncryptedStateStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One writer; the session manager already serializes state writes.
	db.SetMaxOpenConns(1)

	// A wrong key only shows up on first access
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStateStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *EncryptedStateStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns a record value.
func (s *EncryptedStateStore) Get(name string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM records WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return value, true, nil
}

// Put creates or replaces a record.
func (s *EncryptedStateStore) Put(name string, value []byte) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO records (name, value, updated_at) VALUES (?, ?, ?)`,
		name, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Delete removes records in one transaction.
func (s *EncryptedStateStore) Delete(names ...string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := tx.Exec(`DELETE FROM records WHERE name = ?`, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// SetMeta stores a daemon metadata value (version, boot time).
func (s *EncryptedStateStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetMeta reads a metadata value; missing keys return "".
func (s *EncryptedStateStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Path returns the database file path.
func (s *EncryptedStateStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStateStore implements domain.StateStore.
var _ domain.StateStore = (*EncryptedStateStore)(nil)
