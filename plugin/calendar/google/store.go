package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	apperr "github.com/hrygo/smartsched/internal/errors"
)

// FileCredentialStore keeps one token file per user under a directory.
// Good enough for a single-node deployment; swap in a database-backed store
// behind the same interface when sharding.
type FileCredentialStore struct {
	dir string
	mu  sync.Mutex
}

var _ CredentialStore = (*FileCredentialStore)(nil)

func NewFileCredentialStore(dir string) (*FileCredentialStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return &FileCredentialStore{dir: dir}, nil
}

func (s *FileCredentialStore) path(userID string) string {
	// userID comes from an external platform; keep it filesystem-safe.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, userID)
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileCredentialStore) Token(_ context.Context, userID string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path(userID))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeAuthRequired, "no stored token", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeAuthRequired, "corrupt stored token", err)
	}
	return &tok, nil
}

func (s *FileCredentialStore) Save(_ context.Context, userID string, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(userID), payload, 0600)
}
