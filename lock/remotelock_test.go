package lock

import "testing"

func TestRemoteLockSharesCriticalSection(t *testing.T) {
	waitLock := NewSpinlock("wait-lock", fixedCPU(5))
	parentA := NewSpinlockRemote[int](waitLock, 0)
	parentB := NewSpinlockRemote[int](waitLock, 0)

	g := waitLock.Lock()
	*parentA.Get(g) = 10
	*parentB.Get(g) = 20
	g.Unlock()

	g = waitLock.Lock()
	if *parentA.Get(g) != 10 || *parentB.Get(g) != 20 {
		t.Fatalf("got %d, %d", *parentA.Get(g), *parentB.Get(g))
	}
	g.Unlock()
}

func TestRemoteLockRejectsForeignGuard(t *testing.T) {
	l1 := NewSpinlock("l1", fixedCPU(6))
	l2 := NewSpinlock("l2", fixedCPU(6))
	cell := NewSpinlockRemote[int](l1, 0)

	g2 := l2.Lock()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic presenting a guard from the wrong lock")
		}
		g2.Unlock()
	}()
	cell.Get(g2)
}
