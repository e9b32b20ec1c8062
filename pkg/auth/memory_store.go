package auth

import "sync"

// MemoryStore keeps accounts in process. Fail makes an operation return a
// fixed error, which is how tests simulate a locked keychain.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	failures map[string]error
}

// Operation names accepted by MemoryStore.Fail
const (
	OpStore    = "store"
	OpRetrieve = "retrieve"
	OpList     = "list"
	OpDelete   = "delete"
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: map[string]Account{}, failures: map[string]error{}}
}

// NewMemoryManager returns a Manager over one fresh MemoryStore
func NewMemoryManager() (*Manager, *MemoryStore) {
	s := NewMemoryStore()
	return NewManagerWithStores(s), s
}

// Fail makes op return err from now on; a nil err clears it
func (m *MemoryStore) Fail(op string, err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
	} else {
		m.failures[op] = err
	}
	return m
}

func (m *MemoryStore) Store(account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpStore]; err != nil {
		return err
	}
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	m.accounts[account.Name] = *account
	return nil
}

func (m *MemoryStore) Retrieve(name string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failures[OpRetrieve]; err != nil {
		return nil, err
	}
	a, ok := m.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (m *MemoryStore) List() ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failures[OpList]; err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		a := a
		out = append(out, &a)
	}
	return out, nil
}

func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpDelete]; err != nil {
		return err
	}
	if _, ok := m.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, name)
	return nil
}

func (m *MemoryStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[name]
	return ok
}

// Len reports how many accounts are held
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}
