package auth

import (
	"errors"
	"time"

	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
)

// DefaultAccount is the label used when a login is not given one
const DefaultAccount = "default"

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Account is a saved access token. Name is the local label; UserID and
// Username identify the Flickr member who approved the token.
type Account struct {
	Name         string    `json:"name"`
	ConsumerKey  string    `json:"consumer_key,omitempty"`
	Token        string    `json:"oauth_token"`
	Secret       string    `json:"oauth_token_secret"`
	UserID       string    `json:"user_nsid"`
	Username     string    `json:"username"`
	LastModified time.Time `json:"last_modified"`
}

// AccountFromToken labels an access token for storage
func AccountFromToken(name, consumerKey string, tok oauth1.AccessToken) *Account {
	if name == "" {
		name = DefaultAccount
	}
	return &Account{
		Name:        name,
		ConsumerKey: consumerKey,
		Token:       tok.Token,
		Secret:      tok.Secret,
		UserID:      tok.UserID,
		Username:    tok.Username,
	}
}

// AccessToken converts back to the form request signing takes
func (a *Account) AccessToken() *oauth1.AccessToken {
	if a == nil {
		return nil
	}
	return &oauth1.AccessToken{Token: a.Token, Secret: a.Secret, UserID: a.UserID, Username: a.Username}
}

func (a *Account) complete() bool {
	return a != nil && a.Name != "" && a.Token != "" && a.Secret != ""
}

// SanitizeAccount returns a copy safe to print
func SanitizeAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Token = logger.MaskSecret(a.Token)
	out.Secret = logger.MaskSecret(a.Secret)
	return &out
}
