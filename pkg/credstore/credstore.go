package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medvault/passkey/pkg/codec"
	"github.com/medvault/passkey/pkg/config"
	"github.com/medvault/passkey/pkg/options"
	"github.com/medvault/passkey/pkg/storage"
)

var ErrWriteFailed = errors.New("credstore: persistence write failed")

// StoredCredential is one registered platform credential. Entries are only
// ever removed wholesale via ClearAll.
type StoredCredential struct {
	ID             string                   `json:"id"`
	UserEmail      string                   `json:"userEmail"`
	CreatedAt      time.Time                `json:"createdAt"`
	LastUsed       time.Time                `json:"lastUsed"`
	DeviceName     string                   `json:"deviceName"`
	CredentialType string                   `json:"credentialType"`
	ResidentKey    bool                     `json:"residentKey"`
	Credential     codec.EncodedAttestation `json:"credential"`
}

// Store persists the credential mapping and its three auxiliary entries
// (last-used id, enabled flag, user email) through a text key/value backend.
type Store struct {
	kv     storage.Store
	keys   config.StorageKeys
	logger *slog.Logger
	now    func() time.Time
}

func New(kv storage.Store, opts ...options.Option) *Store {
	oo := options.NewOptions(opts...)

	return &Store{
		kv:     kv,
		keys:   oo.StorageKeys,
		logger: oo.Logger,
		now:    oo.Clock,
	}
}

// Put inserts or overwrites one credential, stamping CreatedAt/LastUsed with
// the current time when unset, and updates the last-used id, enabled flag
// and user email entries. Write failures propagate; the registration flow
// treats them as fatal.
func (s *Store) Put(cred StoredCredential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = s.now()
	}
	if cred.LastUsed.IsZero() {
		cred.LastUsed = cred.CreatedAt
	}
	if cred.CredentialType == "" {
		cred.CredentialType = "platform"
	}

	m := s.GetAll()
	m[cred.ID] = cred

	if err := s.writeAll(m); err != nil {
		return err
	}

	if err := s.kv.Set(s.keys.LastUsedID, cred.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := s.kv.Set(s.keys.Enabled, "true"); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := s.kv.Set(s.keys.UserEmail, cred.UserEmail); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	return nil
}

// GetAll returns the full credential mapping. An absent or corrupt entry
// reads as an empty mapping, never as an error.
func (s *Store) GetAll() map[string]StoredCredential {
	raw, ok, err := s.kv.Get(s.keys.Credentials)
	if err != nil {
		s.logger.Warn("credential mapping unreadable, treating as empty", "error", err)
		return map[string]StoredCredential{}
	}
	if !ok {
		return map[string]StoredCredential{}
	}

	m := map[string]StoredCredential{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		s.logger.Warn("credential mapping corrupt, treating as empty", "error", err)
		return map[string]StoredCredential{}
	}
	return m
}

// Get returns one credential by id.
func (s *Store) Get(id string) (StoredCredential, bool) {
	cred, ok := s.GetAll()[id]
	return cred, ok
}

// HasAny reports whether at least one credential is stored.
func (s *Store) HasAny() bool {
	return len(s.GetAll()) > 0
}

// TouchLastUsed stamps one entry's LastUsed with the current time.
// A no-op if the entry is absent.
func (s *Store) TouchLastUsed(id string) error {
	m := s.GetAll()
	cred, ok := m[id]
	if !ok {
		return nil
	}

	cred.LastUsed = s.now()
	m[id] = cred

	if err := s.writeAll(m); err != nil {
		return err
	}
	return s.kv.Set(s.keys.LastUsedID, id)
}

// Email returns the auxiliary user email entry.
func (s *Store) Email() string {
	v, _, _ := s.kv.Get(s.keys.UserEmail)
	return v
}

// LastUsedID returns the auxiliary last-used credential id entry.
func (s *Store) LastUsedID() string {
	v, _, _ := s.kv.Get(s.keys.LastUsedID)
	return v
}

// Enabled reports whether the biometric enabled flag is set.
func (s *Store) Enabled() bool {
	v, _, _ := s.kv.Get(s.keys.Enabled)
	return v == "true"
}

// ClearAll removes all four persisted entries unconditionally.
func (s *Store) ClearAll() error {
	return errors.Join(
		s.kv.Delete(s.keys.Credentials),
		s.kv.Delete(s.keys.UserEmail),
		s.kv.Delete(s.keys.LastUsedID),
		s.kv.Delete(s.keys.Enabled),
	)
}

func (s *Store) writeAll(m map[string]StoredCredential) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := s.kv.Set(s.keys.Credentials, string(b)); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// IsSynthetic reports whether id belongs to a synthetic test credential.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, config.TestCredentialPrefix)
}
