// Package storage provides the registry of locked resources for lockbot.
//
// The BBolt database uses four buckets:
//   - config: schema version and timestamps
//   - entries: locked path -> Entry (original path, kind, KDF parameters, fingerprint)
//   - audit: bounded action log, keyed by a big-endian sequence number
//   - settings: runtime flags such as whether the bot accepts commands
//
// Every mutation is its own transaction, so the registry survives restarts
// and a .locked artifact created before a crash is still known afterwards.
// Memory implements the same contract without persistence.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
