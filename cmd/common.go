package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/illarion/lockbot/internal/config"
	"github.com/illarion/lockbot/internal/crypto"
	"github.com/illarion/lockbot/internal/logger"
	"github.com/illarion/lockbot/internal/security"
	"github.com/illarion/lockbot/internal/storage"
	"github.com/illarion/lockbot/internal/vault"
)

// PasswordEnv names the variable checked before prompting
const PasswordEnv = "LOCKBOT_PASSWORD"

// ReadPassword reads a password from the terminal without echoing
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// ReadPasswordConfirm reads a password twice and ensures they match
func ReadPasswordConfirm() ([]byte, error) {
	password1, err := ReadPassword("Enter password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password1)

	password2, err := ReadPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password2)

	if !crypto.ConstantTimeCompare(password1, password2) {
		return nil, fmt.Errorf("passwords do not match")
	}

	result := make([]byte, len(password1))
	copy(result, password1)
	return result, nil
}

func passwordFromEnv() []byte {
	password := os.Getenv(PasswordEnv)
	if password == "" {
		return nil
	}
	result := make([]byte, len(password))
	copy(result, password)
	return result
}

// GetPassword retrieves password from environment or prompts user.
// The caller is responsible for calling crypto.ClearBytes on the returned password.
func GetPassword(prompt string, confirm bool) ([]byte, error) {
	if password := passwordFromEnv(); password != nil {
		return password, nil
	}
	if confirm {
		return ReadPasswordConfirm()
	}
	return ReadPassword(prompt)
}

// GetPasswordOrExit is like GetPassword but exits on error
func GetPasswordOrExit(prompt string, confirm bool) []byte {
	password, err := GetPassword(prompt, confirm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return password
}

// HandleError reports err on stderr and exits
func HandleError(err error) {
	switch {
	case errors.Is(err, config.ErrMissingToken):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Run 'lockbot token set' or export LOCKBOT_TOKEN\n")
	case errors.Is(err, config.ErrMissingOwner):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	case errors.Is(err, storage.ErrBusy):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Stop 'lockbot serve' before running offline commands\n")
	case errors.Is(err, vault.ErrWrongPassword):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
	case errors.Is(err, vault.ErrAlreadyLocked):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'lockbot ls' to see locked resources\n")
	case errors.Is(err, vault.ErrDestinationExists):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Move the existing file away and try again\n")
	case errors.Is(err, security.ErrOutsideRoots), errors.Is(err, security.ErrRootPath):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Allowed roots are set with 'roots' in the config or LOCKBOT_ROOTS\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

// offline bundles what the local commands need to work on the registry
// while the bot is not running
type offline struct {
	cfg    *config.Config
	store  *storage.Storage
	engine *vault.Engine
	roots  []string
	log    *zap.Logger
}

func openOffline(configPath string) *offline {
	cfg, err := config.Load(configPath)
	if err != nil {
		HandleError(err)
	}
	log := logger.NewConsole(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		HandleError(fmt.Errorf("failed to create data directory: %w", err))
	}
	store, err := storage.Open(cfg.RegistryPath())
	if err != nil {
		HandleError(err)
	}

	validator, err := security.New(cfg.Roots)
	if err != nil {
		store.Close()
		HandleError(err)
	}

	engine := vault.New(store, vault.Options{
		Iterations: cfg.KDFIterations,
		Timeout:    cfg.OpTimeout,
		Resolver:   validator,
		Logger:     log,
	})
	return &offline{cfg: cfg, store: store, engine: engine, roots: validator.Roots(), log: log}
}

func (o *offline) Close() {
	o.store.Close()
	o.log.Sync()
}

// absPath makes command line paths relative to the working directory
// rather than to the first allowed root
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
