package memory

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"referralstats/internal/domain"
)

const snapshotVersion = 1

// Snapshot is the serialized content of a Store, used for a warm start after a restart
// when no durable backend is configured.
type Snapshot struct {
	Version     int
	TakenAt     time.Time
	Collections map[string]map[string][]byte
}

// Snapshot encodes every committed entity with gob.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	snap := Snapshot{
		Version:     snapshotVersion,
		TakenAt:     time.Now().UTC(),
		Collections: make(map[string]map[string][]byte, len(s.data)),
	}
	for c, coll := range s.data {
		out := make(map[string][]byte, len(coll))
		for id, b := range coll {
			out[id] = b
		}
		snap.Collections[string(c)] = out
	}
	s.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the content of the store with a snapshot.
func (s *Store) Restore(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty snapshot data")
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", snap.Version)
	}

	restored := make(map[domain.Collection]map[string][]byte, len(snap.Collections))
	for c, coll := range snap.Collections {
		if coll == nil {
			coll = make(map[string][]byte)
		}
		restored[domain.Collection(c)] = coll
	}

	s.mu.Lock()
	s.data = restored
	s.mu.Unlock()
	return nil
}

// SaveFile writes the snapshot next to path and renames it into place.
func (s *Store) SaveFile(path string) error {
	b, err := s.Snapshot()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile restores from path. A missing file leaves the store empty and reports false.
func (s *Store) LoadFile(path string) (bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read snapshot file: %w", err)
	}
	if err = s.Restore(b); err != nil {
		return false, err
	}
	return true, nil
}
