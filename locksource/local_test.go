package locksource

import (
	"context"
	"testing"
)

func TestLocalExcludes(t *testing.T) {
	ctx := context.Background()
	var l Local

	const key = `https://example.com/foo-1.0.0.tar.gz`
	lc, ldone := l.Lock(ctx, key)
	if err := lc.Err(); err != nil {
		t.Fatalf("unable to take lock: %v", err)
	}

	tc, tdone := l.TryLock(ctx, key)
	defer tdone()
	if err := tc.Err(); err == nil {
		t.Error("TryLock succeeded while the lock was held")
	}

	ldone()
	rc, rdone := l.TryLock(ctx, key)
	defer rdone()
	if err := rc.Err(); err != nil {
		t.Errorf("unable to re-take lock: %v", err)
	}
}

func TestLocalWaits(t *testing.T) {
	ctx := context.Background()
	var l Local

	const key = `shared`
	lc, ldone := l.Lock(ctx, key)
	if err := lc.Err(); err != nil {
		t.Fatalf("unable to take lock: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		wc, wdone := l.Lock(ctx, key)
		defer wdone()
		got <- wc.Err()
	}()

	ldone()
	if err := <-got; err != nil {
		t.Errorf("waiter did not acquire after release: %v", err)
	}
}
