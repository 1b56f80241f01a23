package pglock

import (
	"testing"
)

func TestLockExcludes(t *testing.T) {
	ctx, l := basicSetup(t)

	const key = `pkg:pypi/requests@2.31.0`
	lc, ldone := l.Lock(ctx, key)
	defer ldone()
	if err := lc.Err(); err != nil {
		t.Fatalf("unable to take lock: %v", err)
	}

	// A second acquisition of the same key must fail without waiting.
	tc, tdone := l.TryLock(ctx, key)
	defer tdone()
	if err := tc.Err(); err == nil {
		t.Error("TryLock succeeded while the lock was held")
	}

	// Releasing the lock makes the key available again.
	ldone()
	rc, rdone := l.TryLock(ctx, key)
	defer rdone()
	if err := rc.Err(); err != nil {
		t.Errorf("unable to re-take lock: %v", err)
	}
}

func TestLockDistinctKeys(t *testing.T) {
	ctx, l := basicSetup(t)

	ac, adone := l.Lock(ctx, `pkg:npm/lodash@4.17.21`)
	defer adone()
	if err := ac.Err(); err != nil {
		t.Fatalf("unable to take lock: %v", err)
	}
	bc, bdone := l.TryLock(ctx, `pkg:npm/lodash@4.17.20`)
	defer bdone()
	if err := bc.Err(); err != nil {
		t.Errorf("distinct key should not contend: %v", err)
	}
}
