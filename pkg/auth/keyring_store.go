package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "flickrheat"
	// keyringIndex lists the saved labels, since keychains cannot be
	// enumerated portably
	keyringIndex    = "index"
	availabilityKey = "availability-check"
)

// KeyringStore saves each account as a JSON secret in the system keychain
// under "account:<name>".
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore succeeds only when the keychain accepts a test write
func NewKeyringStore() (*KeyringStore, error) {
	if err := keyring.Set(keyringService, availabilityKey, "ok"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(keyringService, availabilityKey)
	return &KeyringStore{}, nil
}

// IsKeyringAvailable reports whether logins will land in the keychain
func IsKeyringAvailable() bool {
	_, err := NewKeyringStore()
	return err == nil
}

func secretKey(name string) string { return "account:" + name }

func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	blob, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Set(keyringService, secretKey(account.Name), string(blob)); err != nil {
		return fmt.Errorf("keychain write: %w", err)
	}
	names := k.names()
	if _, ok := names[account.Name]; ok {
		return nil
	}
	names[account.Name] = struct{}{}
	return k.saveNames(names)
}

func (k *KeyringStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}
	blob, err := keyring.Get(keyringService, secretKey(name))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keychain read: %w", err)
	}
	var a Account
	if err := json.Unmarshal([]byte(blob), &a); err != nil {
		return nil, fmt.Errorf("decode account %q: %w", name, err)
	}
	return &a, nil
}

// List reads every indexed label; labels whose secret vanished are skipped
func (k *KeyringStore) List() ([]*Account, error) {
	k.mu.Lock()
	names := k.names()
	k.mu.Unlock()

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	out := make([]*Account, 0, len(sorted))
	for _, n := range sorted {
		a, err := k.Retrieve(n)
		if errors.Is(err, ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	err := keyring.Delete(keyringService, secretKey(name))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("keychain delete: %w", err)
	}
	names := k.names()
	delete(names, name)
	return k.saveNames(names)
}

func (k *KeyringStore) Exists(name string) bool {
	_, err := k.Retrieve(name)
	return err == nil
}

func (k *KeyringStore) names() map[string]struct{} {
	set := map[string]struct{}{}
	raw, err := keyring.Get(keyringService, keyringIndex)
	if err != nil {
		return set
	}
	var list []string
	if json.Unmarshal([]byte(raw), &list) == nil {
		for _, n := range list {
			set[n] = struct{}{}
		}
	}
	return set
}

func (k *KeyringStore) saveNames(set map[string]struct{}) error {
	if len(set) == 0 {
		err := keyring.Delete(keyringService, keyringIndex)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	list := make([]string, 0, len(set))
	for n := range set {
		list = append(list, n)
	}
	sort.Strings(list)
	raw, _ := json.Marshal(list)
	return keyring.Set(keyringService, keyringIndex, string(raw))
}
