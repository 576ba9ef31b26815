package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFiresOnlyPastDeadline(t *testing.T) {
	t.Parallel()

	c := NewFake(epoch)
	ch := c.After(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-ch:
		assert.Equal(t, epoch.Add(10*time.Second), fired)
	default:
		t.Fatal("timer did not fire at its deadline")
	}
	assert.Zero(t, c.PendingTimers())
}

func TestFakeClock_SleepUnblocksOnAdvance(t *testing.T) {
	t.Parallel()

	c := NewFake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleep did not return after advance")
	}
}

func TestFakeClock_TickerReschedules(t *testing.T) {
	t.Parallel()

	c := NewFake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}
}

func TestFakeClock_NonPositiveAfterFiresImmediately(t *testing.T) {
	t.Parallel()

	c := NewFake(epoch)
	select {
	case got := <-c.After(0):
		require.Equal(t, epoch, got)
	default:
		t.Fatal("expected immediate delivery")
	}
}
