package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/berfenger/panelsense/internal/core/domain"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const STORE_FILE_NAME = "panelsense.yaml"

type document struct {
	InstallationId string                       `yaml:"installation_id"`
	LastSession    *domain.ServerConnectionData `yaml:"last_session,omitempty"`
}

// YAMLStore keeps the last successful session and the installation id in a yaml
// file under the data dir.
type YAMLStore struct {
	mu   sync.Mutex
	path string
	doc  document
}

// NewYAMLStore loads dir/panelsense.yaml, creating it with a fresh installation id
// when it does not exist.
func NewYAMLStore(dir string) (*YAMLStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &YAMLStore{path: filepath.Join(dir, STORE_FILE_NAME)}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read store: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &s.doc); err != nil {
			return nil, fmt.Errorf("parse store %s: %w", s.path, err)
		}
	}

	if s.doc.InstallationId == "" {
		s.doc.InstallationId = uuid.NewString()
		if err := s.write(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *YAMLStore) LoadLastSession() (*domain.ServerConnectionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.LastSession == nil {
		return nil, nil
	}
	data := *s.doc.LastSession
	return &data, nil
}

func (s *YAMLStore) SaveLastSession(data domain.ServerConnectionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.LastSession = &data
	return s.write()
}

func (s *YAMLStore) InstallationId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.InstallationId
}

func (s *YAMLStore) write() error {
	raw, err := yaml.Marshal(s.doc)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore is a SessionStore that forgets everything on exit.
type MemoryStore struct {
	mu             sync.Mutex
	last           *domain.ServerConnectionData
	installationId string
	saves          int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{installationId: uuid.NewString()}
}

func (s *MemoryStore) LoadLastSession() (*domain.ServerConnectionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, nil
	}
	data := *s.last
	return &data, nil
}

func (s *MemoryStore) SaveLastSession(data domain.ServerConnectionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &data
	s.saves++
	return nil
}

func (s *MemoryStore) InstallationId() string {
	return s.installationId
}

// Saves counts calls to SaveLastSession.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
