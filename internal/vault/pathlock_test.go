package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPathLocksSerializeSameKey(t *testing.T) {
	locks := newPathLocks()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "/a")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("Expected at most one holder, saw %d", maxInside)
	}
	if locks.size() != 0 {
		t.Errorf("Slots leaked: %d", locks.size())
	}
}

func TestPathLocksIndependentKeys(t *testing.T) {
	locks := newPathLocks()

	unlockA, err := locks.Lock(context.Background(), "/a")
	if err != nil {
		t.Fatalf("Lock /a failed: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.Lock(ctx, "/b")
	if err != nil {
		t.Fatalf("Lock /b should not wait on /a: %v", err)
	}
	unlockB()
}

func TestPathLocksHonourDeadline(t *testing.T) {
	locks := newPathLocks()

	unlock, err := locks.Lock(context.Background(), "/a")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(ctx, "/a"); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}

	unlock()
	unlock() // second call is a no-op
	if locks.size() != 0 {
		t.Errorf("Slots leaked: %d", locks.size())
	}
}
