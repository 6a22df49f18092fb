// Package secrets reads and writes the encrypted API key store.
//
// A store is a directory holding two files: .crypto_key, a Fernet key, and
// .encrypted_keys, a JSON object mapping key names to Fernet tokens.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fernet/fernet-go"
)

// File names inside a store directory.
const (
	KeyFile    = ".crypto_key"
	SecretFile = ".encrypted_keys"
)

// Common secrets errors.
var (
	ErrKeyMissing   = errors.New("crypto key not found")
	ErrStoreMissing = errors.New("encrypted key store not found")
	ErrDecrypt      = errors.New("cannot decrypt secret")
	ErrKeyExists    = errors.New("crypto key already exists")
	ErrNotFound     = errors.New("secret not found")
	ErrEmptyName    = errors.New("secret name cannot be empty")
)

// Store is an encrypted key store rooted at Dir.
type Store struct {
	Dir string

	mu sync.Mutex
}

// NewStore returns a store for dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) keyPath() string    { return filepath.Join(s.Dir, KeyFile) }
func (s *Store) secretPath() string { return filepath.Join(s.Dir, SecretFile) }

// Load decrypts every entry in the store. Both files must exist and every
// token must decrypt with the store key.
func (s *Store) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.readKey()
	if err != nil {
		return nil, err
	}

	tokens, err := s.readTokens(false)
	if err != nil {
		return nil, err
	}

	keys := []*fernet.Key{key}
	out := make(map[string]string, len(tokens))
	for name, tok := range tokens {
		// A negative TTL disables the token age check.
		plain := fernet.VerifyAndDecrypt([]byte(tok), -1, keys)
		if plain == nil {
			return nil, fmt.Errorf("%w: %s", ErrDecrypt, name)
		}
		out[name] = string(plain)
	}
	return out, nil
}

// Get decrypts a single entry.
func (s *Store) Get(name string) (string, error) {
	all, err := s.Load()
	if err != nil {
		return "", err
	}
	v, ok := all[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// Init generates a new key. An existing key is kept unless force is set;
// replacing a key makes existing tokens unreadable, so force also clears them.
func (s *Store) Init(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.keyPath()); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrKeyExists, s.keyPath())
	}

	var key fernet.Key
	if err := key.Generate(); err != nil {
		return fmt.Errorf("generating crypto key: %w", err)
	}

	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("creating secrets directory: %w", err)
	}
	if err := writeAtomic(s.keyPath(), []byte(key.Encode())); err != nil {
		return err
	}
	return s.writeTokens(map[string]string{})
}

// Set encrypts value under name, replacing any previous value.
func (s *Store) Set(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.readKey()
	if err != nil {
		return err
	}

	tokens, err := s.readTokens(true)
	if err != nil {
		return err
	}

	tok, err := fernet.EncryptAndSign([]byte(value), key)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", name, err)
	}
	tokens[name] = string(tok)

	return s.writeTokens(tokens)
}

// Names lists the stored entry names in sorted order without decrypting them.
func (s *Store) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.readTokens(true)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) readKey() (*fernet.Key, error) {
	data, err := os.ReadFile(s.keyPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyMissing, s.keyPath())
		}
		return nil, fmt.Errorf("reading crypto key: %w", err)
	}

	key, err := fernet.DecodeKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding crypto key %s: %w", s.keyPath(), err)
	}
	return key, nil
}

// readTokens reads the token file. When allowMissing is set a missing file
// yields an empty map.
func (s *Store) readTokens(allowMissing bool) (map[string]string, error) {
	data, err := os.ReadFile(s.secretPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if allowMissing {
				return map[string]string{}, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, s.secretPath())
		}
		return nil, fmt.Errorf("reading key store: %w", err)
	}

	tokens := map[string]string{}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parsing key store %s: %w", s.secretPath(), err)
	}
	return tokens, nil
}

func (s *Store) writeTokens(tokens map[string]string) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling key store: %w", err)
	}
	return writeAtomic(s.secretPath(), data)
}

// writeAtomic replaces path with data through a temporary file and rename.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
