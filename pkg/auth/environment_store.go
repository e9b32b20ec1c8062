package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvAccessToken  = "FLICKRHEAT_ACCESS_TOKEN"
	EnvAccessSecret = "FLICKRHEAT_ACCESS_SECRET"
	EnvUserNSID     = "FLICKRHEAT_USER_NSID"
	EnvUsername     = "FLICKRHEAT_USERNAME"
)

// EnvironmentStore is a read-only CredentialStore backed by environment
// variables, for CI and containers where no keyring or home directory
// exists.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment bundle under any name
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	token := os.Getenv(EnvAccessToken)
	secret := os.Getenv(EnvAccessSecret)
	if token == "" || secret == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = DefaultAccount
	}

	return &Account{
		Name:     name,
		Token:    token,
		Secret:   secret,
		UserID:   os.Getenv(EnvUserNSID),
		Username: os.Getenv(EnvUsername),
		// Environment credentials never win over a stored login
		LastModified: time.Time{},
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(EnvAccessToken) != "" && os.Getenv(EnvAccessSecret) != ""
}
