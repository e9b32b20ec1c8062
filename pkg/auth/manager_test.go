package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"flickrheat/pkg/oauth1"
)

func testAccount(name string) *Account {
	return &Account{
		Name:     name,
		Token:    "72157720000000000-abcdef0123456789",
		Secret:   "0123456789abcdef",
		UserID:   "12345678@N00",
		Username: "alice",
	}
}

func TestManagerStoreAndRetrieve(t *testing.T) {
	manager, store := NewMemoryManager()

	require.NoError(t, manager.Store(testAccount("work")))
	assert.Equal(t, 1, store.Len())

	got, err := manager.Retrieve("work")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "12345678@N00", got.UserID)
	assert.False(t, got.LastModified.IsZero())

	_, err = manager.Retrieve("missing")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerStoreRejectsIncompleteBundle(t *testing.T) {
	manager, _ := NewMemoryManager()

	assert.Error(t, manager.Store(nil))
	assert.Error(t, manager.Store(&Account{Token: "t", Secret: "s"}))
	assert.Error(t, manager.Store(&Account{Name: "x", Token: "t"}))
}

func TestManagerFallsThroughFailingStore(t *testing.T) {
	broken := NewMemoryStore().Fail(OpStore, errors.New("keychain locked"))
	working := NewMemoryStore()
	manager := NewManagerWithStores(broken, working)

	require.NoError(t, manager.Store(testAccount(DefaultAccount)))
	assert.Equal(t, 0, broken.Len())
	assert.Equal(t, 1, working.Len())
}

func TestManagerRetrieveDefault(t *testing.T) {
	t.Run("default name wins", func(t *testing.T) {
		manager, _ := NewMemoryManager()
		require.NoError(t, manager.Store(testAccount("other")))
		require.NoError(t, manager.Store(testAccount(DefaultAccount)))

		got, err := manager.RetrieveDefault()
		require.NoError(t, err)
		assert.Equal(t, DefaultAccount, got.Name)
	})

	t.Run("newest account otherwise", func(t *testing.T) {
		store := NewMemoryStore()
		manager := NewManagerWithStores(store)
		old := testAccount("old")
		old.LastModified = time.Now().Add(-time.Hour)
		fresh := testAccount("fresh")
		fresh.LastModified = time.Now()
		require.NoError(t, store.Store(old))
		require.NoError(t, store.Store(fresh))

		got, err := manager.RetrieveDefault()
		require.NoError(t, err)
		assert.Equal(t, "fresh", got.Name)
	})

	t.Run("nothing stored", func(t *testing.T) {
		manager, _ := NewMemoryManager()
		_, err := manager.RetrieveDefault()
		assert.ErrorIs(t, err, ErrCredentialsNotFound)
	})
}

func TestManagerListPrefersNewestCopy(t *testing.T) {
	a, b := NewMemoryStore(), NewMemoryStore()
	manager := NewManagerWithStores(a, b)

	stale := testAccount("work")
	stale.Username = "stale"
	stale.LastModified = time.Now().Add(-time.Hour)
	current := testAccount("work")
	current.LastModified = time.Now()
	require.NoError(t, a.Store(stale))
	require.NoError(t, b.Store(current))

	accounts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice", accounts[0].Username)
}

func TestManagerDelete(t *testing.T) {
	manager, store := NewMemoryManager()
	require.NoError(t, manager.Store(testAccount("work")))

	require.NoError(t, manager.Delete("work"))
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, manager.Delete("work"), ErrCredentialsNotFound)
}

func TestManagerDeleteAll(t *testing.T) {
	manager, store := NewMemoryManager()
	require.NoError(t, manager.Store(testAccount("a")))
	require.NoError(t, manager.Store(testAccount("b")))

	require.NoError(t, manager.DeleteAll())
	assert.Equal(t, 0, store.Len())
}

func TestAccountTokenConversion(t *testing.T) {
	tok := oauth1.AccessToken{Token: "tok", Secret: "sec", UserID: "1@N00", Username: "bob"}

	account := AccountFromToken("", "ck", tok)
	assert.Equal(t, DefaultAccount, account.Name)
	assert.Equal(t, "ck", account.ConsumerKey)
	assert.Equal(t, &tok, account.AccessToken())

	var nilAccount *Account
	assert.Nil(t, nilAccount.AccessToken())
}

func TestSanitizeAccount(t *testing.T) {
	account := testAccount("work")
	sanitized := SanitizeAccount(account)

	assert.NotEqual(t, account.Token, sanitized.Token)
	assert.NotEqual(t, account.Secret, sanitized.Secret)
	assert.Equal(t, account.Username, sanitized.Username)
	assert.Equal(t, "0123456789abcdef", account.Secret, "original must be untouched")
	assert.Nil(t, SanitizeAccount(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)

	require.NoError(t, store.Store(testAccount("one")))
	require.NoError(t, store.Store(testAccount("two")))
	assert.True(t, store.Exists("one"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "0123456789abcdef")

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	// a second handle with the same passphrase reads the same file
	reopened, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)
	got, err := reopened.Retrieve("two")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	require.NoError(t, store.Delete("one"))
	require.NoError(t, store.Delete("two"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty store removes its file")

	_, err = store.Retrieve("one")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "right")
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("one")))

	other, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = other.Retrieve("one")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStorePassphraseFromEnv(t *testing.T) {
	t.Setenv(EnvPassphrase, "from-env")
	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "c.enc"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", store.passphrase)

	_, err = NewEncryptedFileStoreWithPassphrase("x", "")
	assert.Error(t, err)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(EnvAccessToken, "")
	t.Setenv(EnvAccessSecret, "")
	assert.False(t, store.Exists(""))
	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(EnvAccessToken, "env-token")
	t.Setenv(EnvAccessSecret, "env-secret")
	t.Setenv(EnvUserNSID, "99@N00")
	t.Setenv(EnvUsername, "ci")

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAccount, account.Name)
	assert.Equal(t, "env-token", account.Token)
	assert.Equal(t, "99@N00", account.UserID)
	assert.True(t, account.LastModified.IsZero())

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	assert.ErrorIs(t, store.Store(testAccount("x")), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
}

func TestManagerStoredLoginBeatsEnvironment(t *testing.T) {
	t.Setenv(EnvAccessToken, "env-token")
	t.Setenv(EnvAccessSecret, "env-secret")

	store := NewMemoryStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())
	saved := testAccount("work")
	saved.LastModified = time.Now()
	require.NoError(t, store.Store(saved))

	accounts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "work", accounts[0].Name)

	// default resolves from the environment when nothing is stored under it
	got, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "env-token", got.Token)
}

func TestShowLoginGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowLoginGuide(&buf, "https://www.flickr.com/services/oauth/authorize?oauth_token=abc")
	assert.Contains(t, buf.String(), "oauth_token=abc")

	assert.Equal(t, "123-456-789", NormalizeVerifier("  123-456-789\n"))
	assert.Equal(t, "123456789", NormalizeVerifier("123 456 789"))
}

func TestManagerStoreReportsEveryFailure(t *testing.T) {
	a := NewMemoryStore().Fail(OpStore, errors.New("keychain locked"))
	b := NewMemoryStore().Fail(OpStore, errors.New("disk full"))
	err := NewManagerWithStores(a, b).Store(testAccount("work"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keychain locked")
	assert.Contains(t, err.Error(), "disk full")
}

func TestManagerListSkipsUnreadableStore(t *testing.T) {
	broken := NewMemoryStore().Fail(OpList, errors.New("locked"))
	ok := NewMemoryStore()
	require.NoError(t, ok.Store(testAccount("work")))

	accounts, err := NewManagerWithStores(broken, ok).List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestManagerDeleteAllLeavesEnvironment(t *testing.T) {
	t.Setenv(EnvAccessToken, "env-token")
	t.Setenv(EnvAccessSecret, "env-secret")

	store := NewMemoryStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())
	require.NoError(t, manager.Store(testAccount("work")))

	require.NoError(t, manager.DeleteAll())
	assert.Equal(t, 0, store.Len())
}

func TestKeyringStoreIndexesAccounts(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("work")))
	require.NoError(t, store.Store(testAccount("home")))
	require.NoError(t, store.Store(testAccount("work")))

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "home", accounts[0].Name)
	assert.Equal(t, "work", accounts[1].Name)

	require.NoError(t, store.Delete("home"))
	assert.ErrorIs(t, store.Delete("home"), ErrCredentialsNotFound)
	assert.False(t, store.Exists("home"))

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}
