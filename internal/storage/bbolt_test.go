package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) (*Storage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), DefaultFileName)

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	return db, dbPath
}

func testEntry(lockedPath string) Entry {
	return Entry{
		LockedPath:   lockedPath,
		OriginalPath: lockedPath[:len(lockedPath)-len(".locked")],
		Fingerprint:  "abc123",
		Salt:         []byte("test-salt-32-bytes-long-exactly!"),
		Iterations:   100000,
		Size:         1234,
		Mode:         0644,
		LockedAt:     time.Now(),
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	db, dbPath := openTestDB(t)

	created, err := db.GetModified()
	if err != nil {
		t.Fatalf("Failed to get modified time: %v", err)
	}
	if created.IsZero() {
		t.Error("Modified time should be set on creation")
	}
	db.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db2.Close()

	if err := db2.Initialize(); err != nil {
		t.Fatalf("Initialize on existing database failed: %v", err)
	}
}

func TestEntryOperations(t *testing.T) {
	db, _ := openTestDB(t)
	defer db.Close()

	if err := db.Put(testEntry("/docs/notes.txt.locked")); err != nil {
		t.Fatalf("Failed to put entry: %v", err)
	}

	entry, err := db.Get("/docs/notes.txt.locked")
	if err != nil {
		t.Fatalf("Failed to get entry: %v", err)
	}
	if entry == nil {
		t.Fatal("Entry should not be nil")
	}
	if entry.OriginalPath != "/docs/notes.txt" {
		t.Errorf("Original path mismatch: got %s", entry.OriginalPath)
	}
	if !entry.HasFingerprint() {
		t.Error("Entry should carry its fingerprint")
	}

	// Missing entry is absence, not an error
	missing, err := db.Get("/docs/other.locked")
	if err != nil {
		t.Fatalf("Get on missing entry returned error: %v", err)
	}
	if missing != nil {
		t.Error("Missing entry should be nil")
	}

	if err := db.Remove("/docs/notes.txt.locked"); err != nil {
		t.Fatalf("Failed to remove entry: %v", err)
	}
	entry, err = db.Get("/docs/notes.txt.locked")
	if err != nil {
		t.Fatalf("Failed to get entry: %v", err)
	}
	if entry != nil {
		t.Error("Entry should be nil after removal")
	}

	// Removing twice is fine
	if err := db.Remove("/docs/notes.txt.locked"); err != nil {
		t.Errorf("Second remove failed: %v", err)
	}
}

func TestPutRejectsEmptyKey(t *testing.T) {
	db, _ := openTestDB(t)
	defer db.Close()

	if err := db.Put(Entry{}); err == nil {
		t.Error("Expected error for entry without locked path")
	}
}

func TestListSorted(t *testing.T) {
	db, _ := openTestDB(t)
	defer db.Close()

	for _, p := range []string{"/b.locked", "/a.locked", "/c.locked"} {
		if err := db.Put(testEntry(p)); err != nil {
			t.Fatalf("Failed to put %s: %v", p, err)
		}
	}
	// Same key replaces, never duplicates
	if err := db.Put(testEntry("/a.locked")); err != nil {
		t.Fatalf("Failed to re-put entry: %v", err)
	}

	entries, err := db.List()
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"/a.locked", "/b.locked", "/c.locked"} {
		if entries[i].LockedPath != want {
			t.Errorf("Entry %d: got %s, want %s", i, entries[i].LockedPath, want)
		}
	}
}

func TestAuditLog(t *testing.T) {
	db, _ := openTestDB(t)
	defer db.Close()

	for i := 0; i < 5; i++ {
		rec := AuditRecord{ID: fmt.Sprint(i), Time: time.Now(), User: 42, Action: "lock", Outcome: "ok"}
		if err := db.AppendAudit(rec); err != nil {
			t.Fatalf("Failed to append audit: %v", err)
		}
	}

	records, err := db.RecentAudit(3)
	if err != nil {
		t.Fatalf("Failed to read audit: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].ID != "4" || records[2].ID != "2" {
		t.Errorf("Records should be newest first, got %s..%s", records[0].ID, records[2].ID)
	}
}

func TestAuditLogBounded(t *testing.T) {
	db, _ := openTestDB(t)
	defer db.Close()

	for i := 0; i < MaxAuditRecords+10; i++ {
		if err := db.AppendAudit(AuditRecord{ID: fmt.Sprint(i), Action: "status"}); err != nil {
			t.Fatalf("Failed to append audit: %v", err)
		}
	}

	records, err := db.RecentAudit(MaxAuditRecords * 2)
	if err != nil {
		t.Fatalf("Failed to read audit: %v", err)
	}
	if len(records) != MaxAuditRecords {
		t.Errorf("Expected %d records, got %d", MaxAuditRecords, len(records))
	}
	if records[len(records)-1].ID != "10" {
		t.Errorf("Oldest kept record should be 10, got %s", records[len(records)-1].ID)
	}
}

func TestActiveFlag(t *testing.T) {
	db, _ := openTestDB(t)
	defer db.Close()

	active, err := db.IsActive()
	if err != nil {
		t.Fatalf("Failed to read active flag: %v", err)
	}
	if !active {
		t.Error("Fresh database should be active")
	}

	if err := db.SetActive(false); err != nil {
		t.Fatalf("Failed to set active flag: %v", err)
	}
	active, err = db.IsActive()
	if err != nil {
		t.Fatalf("Failed to read active flag: %v", err)
	}
	if active {
		t.Error("Flag should be inactive")
	}
}

func TestPersistence(t *testing.T) {
	db, dbPath := openTestDB(t)

	if err := db.Put(testEntry("/docs/notes.txt.locked")); err != nil {
		t.Fatalf("Failed to put entry: %v", err)
	}
	if err := db.SetActive(false); err != nil {
		t.Fatalf("Failed to set active flag: %v", err)
	}
	db.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db2.Close()

	entry, err := db2.Get("/docs/notes.txt.locked")
	if err != nil {
		t.Fatalf("Failed to get entry: %v", err)
	}
	if entry == nil || entry.Iterations != 100000 {
		t.Error("Entry not persisted correctly")
	}

	active, err := db2.IsActive()
	if err != nil || active {
		t.Error("Active flag not persisted correctly")
	}
}

func TestCompact(t *testing.T) {
	db, _ := openTestDB(t)
	defer db.Close()

	for i := 0; i < 50; i++ {
		p := fmt.Sprintf("/f%d.locked", i)
		if err := db.Put(testEntry(p)); err != nil {
			t.Fatalf("Failed to put entry: %v", err)
		}
		if i%2 == 0 {
			if err := db.Remove(p); err != nil {
				t.Fatalf("Failed to remove entry: %v", err)
			}
		}
	}

	if err := db.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	entries, err := db.List()
	if err != nil {
		t.Fatalf("Failed to list after compact: %v", err)
	}
	if len(entries) != 25 {
		t.Errorf("Expected 25 entries after compact, got %d", len(entries))
	}
}

func TestMemoryMatchesContract(t *testing.T) {
	m := NewMemory()

	if e, err := m.Get("/x.locked"); err != nil || e != nil {
		t.Error("Missing entry should be nil without error")
	}
	if err := m.Put(testEntry("/x.locked")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entries, _ := m.List()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if err := m.Remove("/x.locked"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	entries, _ = m.List()
	if len(entries) != 0 {
		t.Error("Entry should be gone")
	}
}
