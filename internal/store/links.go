package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/market"
)

// IdentityLinkStore is a durable flat map from an external user identity to
// a record ID, used to gate personalized lookups. It shares the record
// cache's load/overwrite-save pattern.
type IdentityLinkStore struct {
	mu     sync.Mutex
	path   string
	links  map[string]string
	logger *zap.Logger
}

// NewIdentityLinkStore creates the store and loads any existing link file.
// Missing or corrupt files degrade to an empty map.
func NewIdentityLinkStore(path string, logger *zap.Logger) (*IdentityLinkStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("links path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IdentityLinkStore{
		path:   path,
		links:  map[string]string{},
		logger: logger,
	}
	s.load()
	return s, nil
}

func (s *IdentityLinkStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("link file unreadable, starting empty", zap.String("path", s.path), zap.Error(err))
		}
		return
	}
	var links map[string]string
	if err := json.Unmarshal(data, &links); err != nil {
		s.logger.Warn("link file corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		return
	}
	if links != nil {
		s.links = links
	}
}

// Save overwrites the link file with the current map.
func (s *IdentityLinkStore) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.links, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write links: %w", err)
	}
	return nil
}

// Link binds an external identity to a record ID. Re-linking an identity
// that already has a binding is rejected with market.ErrAlreadyLinked.
func (s *IdentityLinkStore) Link(externalIdentity, recordID string) error {
	if externalIdentity == "" || recordID == "" {
		return fmt.Errorf("identity and record id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[externalIdentity]; exists {
		return market.ErrAlreadyLinked
	}
	s.links[externalIdentity] = recordID
	return nil
}

// Resolve returns the record ID linked to the external identity.
func (s *IdentityLinkStore) Resolve(externalIdentity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.links[externalIdentity]
	return id, ok
}

// Unlink removes the binding and reports whether one existed.
func (s *IdentityLinkStore) Unlink(externalIdentity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[externalIdentity]; !ok {
		return false
	}
	delete(s.links, externalIdentity)
	return true
}

// Len returns the number of links held.
func (s *IdentityLinkStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}
