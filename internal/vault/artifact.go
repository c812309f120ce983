package vault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/illarion/lockbot/internal/crypto"
)

const (
	// Suffix is the reserved extension of locked artifacts
	Suffix = ".locked"

	magic      = "LKB1"
	flagDir    = 1 << 0
	headerSize = len(magic) + 1 + 4 + crypto.SaltSize
)

// header is the unencrypted prefix of an artifact. It carries what is needed
// to derive the key, so an artifact stays recoverable without its registry
// entry. The encoded header is authenticated as GCM additional data.
type header struct {
	Dir        bool
	Iterations int
	Salt       []byte
}

func (h header) encode() []byte {
	buf := make([]byte, 0, headerSize)
	buf = append(buf, magic...)
	var flags byte
	if h.Dir {
		flags |= flagDir
	}
	buf = append(buf, flags)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.Iterations))
	return append(buf, h.Salt...)
}

func parseHeader(data []byte) (header, error) {
	if len(data) < headerSize || !bytes.Equal(data[:len(magic)], []byte(magic)) {
		return header{}, fmt.Errorf("%w: bad header", ErrCorruptArtifact)
	}
	off := len(magic)
	flags := data[off]
	off++
	iters := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	salt := append([]byte(nil), data[off:off+crypto.SaltSize]...)

	if flags&^flagDir != 0 || iters < crypto.MinIters || iters > crypto.MaxIters {
		return header{}, fmt.Errorf("%w: unsupported parameters", ErrCorruptArtifact)
	}
	return header{Dir: flags&flagDir != 0, Iterations: int(iters), Salt: salt}, nil
}

// readHeader reads only the header of the artifact at path
func readHeader(path string) (header, error) {
	f, err := os.Open(path)
	if err != nil {
		return header{}, err
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return header{}, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	return parseHeader(buf)
}

// seal encrypts plaintext under key and prefixes the encoded header
func seal(key []byte, h header, plaintext []byte) ([]byte, error) {
	hdr := h.encode()
	enc := crypto.NewEncryptor(key)
	body, err := enc.Encrypt(plaintext, hdr)
	if err != nil {
		return nil, err
	}
	return append(hdr, body...), nil
}

// open authenticates and decrypts an artifact body. Any authentication
// failure means the key, and therefore the password, is wrong.
func open(key []byte, data []byte) ([]byte, error) {
	enc := crypto.NewEncryptor(key)
	plaintext, err := enc.Decrypt(data[headerSize:], data[:headerSize])
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// LockedPathFor returns the artifact path for an original file or directory
func LockedPathFor(original string) string {
	return filepath.Clean(original) + Suffix
}

// OriginalPathFor strips the reserved suffix from an artifact path
func OriginalPathFor(locked string) string {
	return strings.TrimSuffix(filepath.Clean(locked), Suffix)
}

// IsArtifact reports whether path carries the reserved suffix
func IsArtifact(path string) bool {
	return strings.HasSuffix(path, Suffix) && len(filepath.Base(path)) > len(Suffix)
}
