// Package crypto provides cryptographic operations for lockbot.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from password via PBKDF2
//   - 12-byte random nonce per encryption operation
//   - Caller-supplied additional data bound into the tag
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 32-byte random salt per locked resource (stored in the artifact header)
//   - 210,000 iterations by default, never fewer than 100,000 nor more
//     than 5,000,000
//   - DeriveKeyContext bounds a derivation by a deadline
//
// Password verification never compares passwords. A fingerprint (SHA-256 over
// a label and the derived key) is recorded per resource, and decryption
// itself authenticates the key.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
package crypto
