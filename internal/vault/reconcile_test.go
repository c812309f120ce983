package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/lockbot/internal/storage"
)

func TestReconcileAdoptsAndPrunes(t *testing.T) {
	dir := t.TempDir()
	reg := storage.NewMemory()
	engine := newTestEngine(t, reg)
	ctx := context.Background()

	kept := filepath.Join(dir, "kept.txt")
	orphan := filepath.Join(dir, "sub", "orphan.txt")
	stale := filepath.Join(dir, "stale.txt")
	for _, f := range []string{kept, orphan, stale} {
		writeFile(t, f, "data")
		if _, err := engine.Lock(ctx, f, []byte("pw")); err != nil {
			t.Fatalf("Lock %s failed: %v", f, err)
		}
	}

	reg.Remove(orphan + Suffix)
	os.Remove(stale + Suffix)
	writeFile(t, filepath.Join(dir, "broken.locked"), "junk")
	writeFile(t, filepath.Join(dir, ".x.locked.tmp-123"), "partial")

	report, err := engine.Reconcile(ctx, []string{dir})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(report.Adopted) != 1 || report.Adopted[0] != orphan+Suffix {
		t.Errorf("Adopted mismatch: %v", report.Adopted)
	}
	if len(report.Pruned) != 1 || report.Pruned[0] != stale+Suffix {
		t.Errorf("Pruned mismatch: %v", report.Pruned)
	}
	if len(report.Corrupt) != 1 || filepath.Base(report.Corrupt[0]) != "broken.locked" {
		t.Errorf("Corrupt mismatch: %v", report.Corrupt)
	}

	adopted, _ := reg.Get(orphan + Suffix)
	if adopted == nil {
		t.Fatal("Orphan should be registered")
	}
	if adopted.HasFingerprint() || adopted.OriginalPath != orphan {
		t.Errorf("Unexpected adopted entry: %+v", adopted)
	}

	// Adopted artifacts unlock with the password alone
	if _, err := engine.Unlock(ctx, orphan+Suffix, []byte("pw")); err != nil {
		t.Fatalf("Unlock adopted artifact failed: %v", err)
	}

	// A second pass changes nothing
	report, err = engine.Reconcile(ctx, []string{dir})
	if err != nil {
		t.Fatalf("Second reconcile failed: %v", err)
	}
	if len(report.Adopted)+len(report.Pruned) != 0 {
		t.Errorf("Second reconcile should be a no-op: %+v", report)
	}
}

func TestReconcileMissingRoot(t *testing.T) {
	engine := newTestEngine(t, nil)
	report, err := engine.Reconcile(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatalf("Reconcile of a missing root should not fail: %v", err)
	}
	if len(report.Adopted) != 0 {
		t.Errorf("Nothing to adopt: %v", report.Adopted)
	}
}

func TestReconcileRefusesExcessiveIterations(t *testing.T) {
	dir := t.TempDir()
	reg := storage.NewMemory()
	engine := newTestEngine(t, reg)
	ctx := context.Background()

	f := filepath.Join(dir, "notes.txt")
	writeFile(t, f, "data")
	if _, err := engine.Lock(ctx, f, []byte("pw")); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	reg.Remove(f + Suffix)
	setHeaderIterations(t, f+Suffix, 200_000_000)

	report, err := engine.Reconcile(ctx, []string{dir})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(report.Adopted) != 0 || len(report.Corrupt) != 1 {
		t.Errorf("Expected the artifact to be reported corrupt, got %+v", report)
	}
	if entry, _ := reg.Get(f + Suffix); entry != nil {
		t.Error("An artifact with out-of-range parameters must not be adopted")
	}
}
