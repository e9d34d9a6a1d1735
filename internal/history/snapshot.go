package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMalformedSnapshot is returned by Load when the snapshot cannot be decoded.
var ErrMalformedSnapshot = errors.New("malformed history snapshot")

// Load replaces the in-memory state with the snapshot file. A missing or
// empty file yields an empty store. Conversations longer than the current
// limit are trimmed.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	conversations := make(map[string][]Exchange)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &conversations); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
	}
	for id, es := range conversations {
		for i, e := range es {
			if e.Role != RoleUser && e.Role != RoleAssistant {
				return fmt.Errorf("%w: conversation %s turn %d has role %q", ErrMalformedSnapshot, id, i, e.Role)
			}
		}
		conversations[id] = trim(es, s.limit)
	}

	s.mu.Lock()
	s.conversations = conversations
	s.mu.Unlock()
	return nil
}

// Save rewrites the whole snapshot. The file is written next to the target
// and renamed over it so readers never see a half-written document.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.conversations, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
