package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jonboulle/clockwork"

	"flickrheat/pkg/logger"
)

// CredentialStore persists accounts by Name
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(name string) (*Account, error)
	List() ([]*Account, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager layers credential stores. Writes go to the first store that
// accepts them; reads take the first hit; deletes reach every store.
type Manager struct {
	stores []CredentialStore
	clock  clockwork.Clock
	log    logger.Logger
}

// NewManager layers the system keychain (when usable), the encrypted
// vault under the user config directory and the environment.
func NewManager() (*Manager, error) {
	log := logger.GetLogger().WithField("component", "auth")

	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	vault, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("open credential vault: %w", err)
	}

	var stores []CredentialStore
	if kr, err := NewKeyringStore(); err == nil {
		stores = append(stores, kr)
	} else {
		log.DebugWithFields("keychain unusable, falling back to vault", map[string]interface{}{"error": err.Error()})
	}
	stores = append(stores, vault, NewEnvironmentStore())

	m := NewManagerWithStores(stores...)
	m.log = log
	return m, nil
}

// NewManagerWithStores layers stores in the given order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores, clock: clockwork.NewRealClock(), log: logger.NewNopLogger()}
}

// ConfigDir returns (and creates) the per-user flickrheat directory
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	dir := filepath.Join(base, "flickrheat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Store stamps LastModified and saves account
func (m *Manager) Store(account *Account) error {
	if !account.complete() {
		return fmt.Errorf("%w: name, token and secret are required", ErrInvalidCredentials)
	}
	if len(m.stores) == 0 {
		return ErrStoreUnavailable
	}
	account.LastModified = m.clock.Now()

	var errs []error
	for _, s := range m.stores {
		err := s.Store(account)
		if err == nil {
			m.log.DebugWithFields("account saved", map[string]interface{}{
				"account": account.Name,
				"store":   fmt.Sprintf("%T", s),
			})
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("save credentials: %w", errors.Join(errs...))
}

func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, s := range m.stores {
		if a, err := s.Retrieve(name); err == nil && a != nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault prefers the account labelled DefaultAccount and then the
// most recently saved one.
func (m *Manager) RetrieveDefault() (*Account, error) {
	if a, err := m.Retrieve(DefaultAccount); err == nil {
		return a, nil
	}
	all, _ := m.List()
	if len(all) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return all[0], nil
}

// List merges every store, newest first. A name held by several stores
// resolves to its newest copy; unreadable stores are skipped.
func (m *Manager) List() ([]*Account, error) {
	newest := make(map[string]*Account)
	for _, s := range m.stores {
		accounts, err := s.List()
		if err != nil {
			m.log.DebugWithFields("store unreadable", map[string]interface{}{"store": fmt.Sprintf("%T", s), "error": err.Error()})
			continue
		}
		for _, a := range accounts {
			if cur, ok := newest[a.Name]; !ok || a.LastModified.After(cur.LastModified) {
				newest[a.Name] = a
			}
		}
	}

	out := make([]*Account, 0, len(newest))
	for _, a := range newest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].Name < out[j].Name
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// Delete removes name from every store. Stores that never held it or are
// read-only do not count as failures.
func (m *Manager) Delete(name string) error {
	removed := false
	var hard []error
	for _, s := range m.stores {
		err := s.Delete(name)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			hard = append(hard, err)
		}
	}
	if removed {
		return nil
	}
	if len(hard) > 0 {
		return fmt.Errorf("delete credentials: %w", errors.Join(hard...))
	}
	return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// DeleteAll removes every listed account, ignoring ones only the
// environment supplies.
func (m *Manager) DeleteAll() error {
	all, err := m.List()
	if err != nil {
		return err
	}
	for _, a := range all {
		if err := m.Delete(a.Name); err != nil && !errors.Is(err, ErrCredentialsNotFound) {
			return err
		}
	}
	return nil
}
