package storage

import (
	"sync"
)

// Memory is a volatile registry with the same contract as Storage.
// Its contents vanish with the process; it backs tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	audit   []AuditRecord
	active  bool
}

// NewMemory creates an empty in-memory registry
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		active:  true,
	}
}

func (m *Memory) Put(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.LockedPath] = entry
	return nil
}

func (m *Memory) Get(lockedPath string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[lockedPath]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *Memory) Remove(lockedPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, lockedPath)
	return nil
}

func (m *Memory) List() ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func (m *Memory) AppendAudit(rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, rec)
	if len(m.audit) > MaxAuditRecords {
		m.audit = m.audit[len(m.audit)-MaxAuditRecords:]
	}
	return nil
}

func (m *Memory) RecentAudit(n int) ([]AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []AuditRecord
	for i := len(m.audit) - 1; i >= 0 && len(records) < n; i-- {
		records = append(records, m.audit[i])
	}
	return records, nil
}

func (m *Memory) SetActive(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = active
	return nil
}

func (m *Memory) IsActive() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, nil
}
