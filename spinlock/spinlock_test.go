package spinlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBareTryLock(t *testing.T) {
	var b Bare
	g, ok := b.TryLock()
	require.True(t, ok)
	require.False(t, b.InterruptsDisabled() == false)

	_, ok2 := b.TryLock()
	require.False(t, ok2, "contended TryLock must not acquire")

	g.Unlock()

	g2, ok3 := b.TryLock()
	require.True(t, ok3)
	g2.Unlock()
}

func TestBareLockContention(t *testing.T) {
	var b Bare
	g := b.Lock()

	acquired := make(chan struct{})
	go func() {
		g2 := b.Lock()
		close(acquired)
		g2.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	g.Unlock()
	<-acquired
}

func TestTypedSpinlockValueAccess(t *testing.T) {
	ts := NewTyped(0)

	g := ts.Lock()
	*g.Get() = 42
	require.Equal(t, int32(1), PreemptDisableCount.Load())
	g.Unlock()
	require.Equal(t, int32(0), PreemptDisableCount.Load())

	g2 := ts.Lock()
	require.Equal(t, 42, *g2.Get())
	g2.Unlock()
}

func TestCanPreempt(t *testing.T) {
	require.True(t, CanPreempt())
	ts := NewTyped(struct{}{})
	g := ts.Lock()
	require.False(t, CanPreempt())
	g.Unlock()
	require.True(t, CanPreempt())
}
