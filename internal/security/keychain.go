package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeychainService is the service name used for storing tokens in the keychain
	KeychainService = "twitch-chat"
)

// Keychain provides secure OAuth token storage using the OS keychain
type Keychain struct {
	service string
}

// NewKeychain creates a new keychain instance
func NewKeychain() *Keychain {
	return &Keychain{service: KeychainService}
}

// account keys tokens by lowercase nickname
func account(nickname string) string {
	return strings.ToLower(strings.TrimSpace(nickname))
}

// StoreToken stores the OAuth token for a nickname in the OS keychain
func (k *Keychain) StoreToken(nickname, token string) error {
	if token == "" {
		// Empty token, delete instead
		return k.DeleteToken(nickname)
	}
	if err := keyring.Set(k.service, account(nickname), token); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	return nil
}

// GetToken retrieves the OAuth token for a nickname. A missing entry is
// returned as "" with no error.
func (k *Keychain) GetToken(nickname string) (string, error) {
	token, err := keyring.Get(k.service, account(nickname))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get token from keychain: %w", err)
	}
	return token, nil
}

// DeleteToken removes the OAuth token for a nickname from the OS keychain
func (k *Keychain) DeleteToken(nickname string) error {
	if err := keyring.Delete(k.service, account(nickname)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Not found is not an error
		}
		return fmt.Errorf("failed to delete token from keychain: %w", err)
	}
	return nil
}
