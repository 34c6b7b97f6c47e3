// Package secretstore keeps exchange API credentials in an
// encrypted-at-rest Badger store instead of process-global env vars,
// so a credential set can be injected into the order executor at
// construction time.
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// Keys under which the CLOB credential set is stored.
const (
	KeyAPIKey     = "clob/api_key"
	KeyAPISecret  = "clob/api_secret"
	KeyPassphrase = "clob/passphrase"
)

// Credentials is the credential set expected by the CLOB order client.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Store is a small encrypted-at-rest KV wrapper around Badger.
// Encryption is provided by Badger options, not by this wrapper.
type Store struct {
	db *badger.DB
}

// OpenOptions configures the underlying Badger store.
type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens the DB unencrypted (not recommended)
	ReadOnly      bool
}

// Open opens (or creates) the store at the given path.
func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value for key, reporting whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: key is empty")
	}
	var (
		out   string
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

// Set stores val under key.
func (s *Store) Set(key, val string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: key is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

// Credentials loads the CLOB credential set. All three keys must be present.
func (s *Store) Credentials() (Credentials, error) {
	var c Credentials
	for _, item := range []struct {
		key string
		dst *string
	}{
		{KeyAPIKey, &c.APIKey},
		{KeyAPISecret, &c.APISecret},
		{KeyPassphrase, &c.Passphrase},
	} {
		v, ok, err := s.Get(item.key)
		if err != nil {
			return Credentials{}, err
		}
		if !ok || v == "" {
			return Credentials{}, errors.Errorf("secretstore: missing credential %q", item.key)
		}
		*item.dst = v
	}
	return c, nil
}

// SetCredentials stores the full CLOB credential set.
func (s *Store) SetCredentials(c Credentials) error {
	for _, item := range []struct{ key, val string }{
		{KeyAPIKey, c.APIKey},
		{KeyAPISecret, c.APISecret},
		{KeyPassphrase, c.Passphrase},
	} {
		if err := s.Set(item.key, item.val); err != nil {
			return err
		}
	}
	return nil
}

// ParseKey decodes a 32-byte encryption key from base64 or hex.
// Empty input returns nil (no encryption).
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, errors.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, errors.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
