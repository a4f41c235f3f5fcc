package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SessionState is the persisted per-account session record. Every field
// mutation is written back to disk immediately.
type SessionState struct {
	LoginKey         string `json:"loginKey,omitempty"`
	LoginKeyUniqueID uint32 `json:"loginKeyUniqueId,omitempty"`
	SentryHash       []byte `json:"sentryHash,omitempty"`
	SharedSecret     string `json:"sharedSecret,omitempty"`
	IdentitySecret   string `json:"identitySecret,omitempty"`
	DeviceID         string `json:"deviceId,omitempty"`
	SteamID          uint64 `json:"steamId,omitempty"`
	AccountID        uint32 `json:"accountId,omitempty"`
}

// SessionStore owns one bot's session record on disk
type SessionStore struct {
	path  string
	mu    sync.Mutex
	state SessionState
}

// OpenSessionStore loads the session record for the named bot, creating an
// empty one when no file exists yet.
func OpenSessionStore(dataDir, botName string) (*SessionStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	s := &SessionStore{
		path: filepath.Join(dataDir, botName+".json"),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %v", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %v", s.path, err)
	}
	return s, nil
}

// State returns a snapshot of the current session record
func (s *SessionStore) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLoginKey persists a fresh login key issued by the remote side
func (s *SessionStore) SetLoginKey(key string, uniqueID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LoginKey = key
	s.state.LoginKeyUniqueID = uniqueID
	s.save()
}

// ClearLoginKey drops an invalidated login key. Returns true if there was a
// key to clear, so callers can distinguish the fast-retry path.
func (s *SessionStore) ClearLoginKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LoginKey == "" {
		return false
	}
	s.state.LoginKey = ""
	s.state.LoginKeyUniqueID = 0
	s.save()
	return true
}

// SetSentryHash persists the machine-auth sentry hash
func (s *SessionStore) SetSentryHash(hash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SentryHash = hash
	s.save()
}

// SetIDs persists the numeric platform identity, skipping the write when
// nothing changed.
func (s *SessionStore) SetIDs(steamID uint64, accountID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SteamID == steamID && s.state.AccountID == accountID {
		return
	}
	s.state.SteamID = steamID
	s.state.AccountID = accountID
	s.save()
}

// SetDeviceID persists the derived mobile device identifier
func (s *SessionStore) SetDeviceID(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DeviceID = deviceID
	s.save()
}

// SetSecrets persists imported two-factor material
func (s *SessionStore) SetSecrets(sharedSecret, identitySecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SharedSecret = sharedSecret
	s.state.IdentitySecret = identitySecret
	s.save()
}

// save writes the record; callers must hold s.mu. Written to a temp file
// first so a crash never truncates the record.
func (s *SessionStore) save() {
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		LogError("Failed to marshal session state for %s: %v", s.path, err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		LogError("Failed to write session file %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		LogError("Failed to replace session file %s: %v", s.path, err)
	}
}
