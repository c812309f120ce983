package vault

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPathNotFound      = errors.New("path not found")
	ErrWrongPassword     = errors.New("wrong password")
	ErrEntryNotFound     = errors.New("locked entry not found")
	ErrArchive           = errors.New("archive failed")
	ErrIO                = errors.New("i/o failure")
	ErrTimeout           = errors.New("operation timed out")
	ErrAlreadyLocked     = errors.New("resource is already locked")
	ErrDestinationExists = errors.New("restore destination already exists")
	ErrCorruptArtifact   = errors.New("locked artifact is corrupt")
	ErrUnsupportedType   = errors.New("only regular files and directories can be locked")
	ErrInvalidPath       = errors.New("invalid path")
	ErrPasswordRequired  = errors.New("password required")
)

// ioErr wraps an underlying failure as ErrIO while keeping the detail for logs
func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIO, op, err)
}

// ctxErr converts a finished context into the engine's error taxonomy
func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
