package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

// EnvPassphrase overrides the generated passphrase file
const EnvPassphrase = "FLICKRHEAT_PASSPHRASE"

// kdfParams are the argon2id settings a vault was sealed with. They are
// written into the file so older vaults stay readable if defaults move.
type kdfParams struct {
	Time    uint32 `json:"t"`
	Memory  uint32 `json:"m"`
	Threads uint8  `json:"p"`
	Salt    []byte `json:"salt"`
}

var defaultKDF = kdfParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// vaultFile is the on-disk JSON; Sealed is nonce||ciphertext
type vaultFile struct {
	Version int       `json:"v"`
	KDF     kdfParams `json:"kdf"`
	Sealed  []byte    `json:"sealed"`
}

// EncryptedFileStore keeps every account in one AES-256-GCM sealed file
// whose key is derived from a passphrase with argon2id.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewEncryptedFileStore opens a vault at path with the passphrase from
// FLICKRHEAT_PASSPHRASE, or from a generated file next to the vault.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	pass, err := passphraseFor(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return NewEncryptedFileStoreWithPassphrase(path, pass)
}

func NewEncryptedFileStoreWithPassphrase(path, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("vault passphrase is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(accounts map[string]Account) error {
		accounts[account.Name] = *account
		return nil
	})
}

func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}
	e.mu.Lock()
	accounts, _, err := e.open()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a, ok := accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.Lock()
	accounts, _, err := e.open()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		a := a
		out = append(out, &a)
	}
	return out, nil
}

// Delete removes name; the last removal deletes the vault file
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(accounts map[string]Account) error {
		if _, ok := accounts[name]; !ok {
			return ErrCredentialsNotFound
		}
		delete(accounts, name)
		return nil
	})
}

func (e *EncryptedFileStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

// update runs fn over the decrypted accounts and reseals the result
func (e *EncryptedFileStore) update(fn func(map[string]Account) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, kdf, err := e.open()
	if err != nil {
		return err
	}
	if err := fn(accounts); err != nil {
		return err
	}
	if len(accounts) == 0 {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return e.seal(accounts, kdf)
}

// open returns an empty map when the vault does not exist yet
func (e *EncryptedFileStore) open() (map[string]Account, kdfParams, error) {
	raw, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Account{}, kdfParams{}, nil
	}
	if err != nil {
		return nil, kdfParams{}, fmt.Errorf("read vault: %w", err)
	}

	var vf vaultFile
	if err := json.Unmarshal(raw, &vf); err != nil {
		return nil, kdfParams{}, fmt.Errorf("vault is corrupt: %w", err)
	}
	aead, err := e.cipher(vf.KDF)
	if err != nil {
		return nil, kdfParams{}, err
	}
	n := aead.NonceSize()
	if len(vf.Sealed) < n {
		return nil, kdfParams{}, errors.New("vault is truncated")
	}
	plain, err := aead.Open(nil, vf.Sealed[:n], vf.Sealed[n:], nil)
	if err != nil {
		return nil, kdfParams{}, fmt.Errorf("unlock vault (wrong passphrase?): %w", err)
	}

	accounts := map[string]Account{}
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, kdfParams{}, fmt.Errorf("decode vault contents: %w", err)
	}
	return accounts, vf.KDF, nil
}

// seal writes accounts through a temp file, keeping kdf when one is
// already in use and drawing a fresh salt otherwise.
func (e *EncryptedFileStore) seal(accounts map[string]Account, kdf kdfParams) error {
	if len(kdf.Salt) == 0 {
		kdf = defaultKDF
		kdf.Salt = make([]byte, 16)
		if _, err := rand.Read(kdf.Salt); err != nil {
			return err
		}
	}
	aead, err := e.cipher(kdf)
	if err != nil {
		return err
	}
	plain, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	raw, err := json.Marshal(vaultFile{Version: 2, KDF: kdf, Sealed: aead.Seal(nonce, nonce, plain, nil)})
	if err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) cipher(kdf kdfParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(e.passphrase), kdf.Salt, kdf.Time, kdf.Memory, kdf.Threads, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// passphraseFor reads FLICKRHEAT_PASSPHRASE, else dir/.passphrase,
// creating that file with random content on first use.
func passphraseFor(dir string) (string, error) {
	if p := os.Getenv(EnvPassphrase); p != "" {
		return p, nil
	}
	file := filepath.Join(dir, ".passphrase")
	if b, err := os.ReadFile(file); err == nil && len(b) > 0 {
		return string(b), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(file, []byte(p), 0o600); err != nil {
		return "", fmt.Errorf("save vault passphrase: %w", err)
	}
	return p, nil
}
