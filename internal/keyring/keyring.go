package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "lockbot"
	tokenUser   = "bot-token"
)

// ErrNotFound is returned when no token is stored
var ErrNotFound = keyring.ErrNotFound

// SaveToken stores the bot token in the OS keyring
func SaveToken(token string) error {
	return keyring.Set(serviceName, tokenUser, token)
}

// GetToken retrieves the bot token from the OS keyring
func GetToken() (string, error) {
	return keyring.Get(serviceName, tokenUser)
}

// DeleteToken removes the bot token from the OS keyring
func DeleteToken() error {
	err := keyring.Delete(serviceName, tokenUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasToken checks if a token is stored in the keyring
func HasToken() bool {
	_, err := keyring.Get(serviceName, tokenUser)
	return err == nil
}
