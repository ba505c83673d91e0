package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tdvo/mailscreen/internal/credential"
)

// Tokens is the persisted OAuth state for one Graph account.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// valid reports whether the access token is usable, with a two-minute
// safety margin before expiry.
func (t *Tokens) valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-2*time.Minute))
}

// TokenStore persists OAuth tokens between runs.
type TokenStore interface {
	Load() (*Tokens, error)
	Save(*Tokens) error
}

// KeyringTokenStore keeps the token blob in the system keyring so it
// never touches the config file.
type KeyringTokenStore struct {
	// Key is the keyring entry name.
	Key string
}

// Load reads and decodes the stored tokens. A missing entry returns
// (nil, nil).
func (s *KeyringTokenStore) Load() (*Tokens, error) {
	raw, err := credential.Get(s.Key)
	if err != nil {
		return nil, nil
	}

	var t Tokens
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decoding stored tokens: %w", err)
	}
	return &t, nil
}

// Save encodes and stores the tokens.
func (s *KeyringTokenStore) Save(t *Tokens) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	return credential.Set(s.Key, string(raw))
}
