package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// tempSuffix is appended to the public path to build the temporary path.
const tempSuffix = ".tmp"

// schemaConstraint accepts every snapshot this version can read.
const schemaConstraint = "^1.0.0"

// Common snapshot errors.
var (
	ErrEmptyPath         = errors.New("snapshot path cannot be empty")
	ErrNilSnapshot       = errors.New("snapshot cannot be nil")
	ErrCorrupted         = errors.New("snapshot file corrupted")
	ErrUnsupportedSchema = errors.New("unsupported snapshot schema version")
)

// Store writes snapshots to a single path.
// Thread-safe for concurrent access.
type Store struct {
	// path is the public snapshot path.
	path string

	// mu serializes writers so two renames never interleave.
	mu sync.Mutex
}

// NewStore creates a store for path, creating its parent directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	return &Store{path: path}, nil
}

// Path returns the public snapshot path.
func (s *Store) Path() string {
	return s.path
}

// Write serializes snap and atomically replaces the file at Path.
func (s *Store) Write(snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath, err := s.writeTemp(data)
	if err != nil {
		return err
	}
	return s.commit(tmpPath)
}

// writeTemp writes data to the temporary path and syncs it to disk.
func (s *Store) writeTemp(data []byte) (string, error) {
	tmpPath := s.path + tempSuffix

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating snapshot temp file: %w", err)
	}

	if _, writeErr := f.Write(data); writeErr != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing snapshot temp file: %w", writeErr)
	}

	if syncErr := f.Sync(); syncErr != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("syncing snapshot temp file: %w", syncErr)
	}

	if closeErr := f.Close(); closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("closing snapshot temp file: %w", closeErr)
	}

	return tmpPath, nil
}

// commit renames the temporary file over the public path.
func (s *Store) commit(tmpPath string) error {
	if err := os.Rename(tmpPath, s.path); err != nil {
		// Clean up temp file on rename failure
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot temp file: %w", err)
	}
	return nil
}

// Encode renders snap as indented JSON without HTML escaping, so model output
// containing markup or non-ASCII text stays readable.
func Encode(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and validates the snapshot at path.
// Snapshots written before schema versioning carry no version and are accepted.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if unmarshalErr := json.Unmarshal(data, &snap); unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, unmarshalErr)
	}

	if snap.SchemaVersion != "" {
		if checkErr := checkSchema(snap.SchemaVersion); checkErr != nil {
			return nil, checkErr
		}
	}

	if snap.Results == nil {
		snap.Results = make(map[string]string)
	}
	if snap.Failures == nil {
		snap.Failures = make(map[string]Failure)
	}

	return &snap, nil
}

// checkSchema verifies that version satisfies schemaConstraint.
func checkSchema(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnsupportedSchema, version, err)
	}

	constraint, err := semver.NewConstraint(schemaConstraint)
	if err != nil {
		return fmt.Errorf("parsing schema constraint: %w", err)
	}

	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s (supported %s)", ErrUnsupportedSchema, version, schemaConstraint)
	}
	return nil
}
