package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/illarion/lockbot/internal/crypto"
	"github.com/illarion/lockbot/internal/keyring"
)

// TokenSet saves the bot token to the OS keyring
func TokenSet() {
	var token []byte
	if v := os.Getenv("LOCKBOT_TOKEN"); v != "" {
		token = []byte(v)
	} else {
		var err error
		token, err = ReadPassword("Enter bot token: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}
	defer crypto.ClearBytes(token)

	value := strings.TrimSpace(string(token))
	if value == "" {
		fmt.Fprintln(os.Stderr, "Error: empty token")
		os.Exit(1)
	}

	if err := keyring.SaveToken(value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Token saved to keyring")
}

// TokenDelete removes the bot token from the OS keyring
func TokenDelete() {
	if err := keyring.DeleteToken(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete from keyring: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Token removed from keyring")
}

// TokenStatus checks if a bot token is stored in the keyring
func TokenStatus() {
	if keyring.HasToken() {
		fmt.Println("Token: stored in keyring")
	} else {
		fmt.Println("Token: not stored")
	}
}
