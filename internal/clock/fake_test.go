package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ghminer/internal/clock"
)

func TestFake_AfterFunc_FiresOnAdvance(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	fired := false
	c.AfterFunc(5*time.Second, func() { fired = true })

	c.Advance(3 * time.Second)
	require.False(t, fired)

	c.Advance(2 * time.Second)
	require.True(t, fired)
}

func TestFake_Stop_CancelsTimer(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(5*time.Second, func() { fired = true })

	ok := timer.Stop()
	require.True(t, ok)

	c.Advance(10 * time.Second)
	require.False(t, fired)
}

func TestFake_AfterChan_FiresOnAdvance(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	ch := c.AfterChan(time.Second)

	select {
	case <-ch:
		t.Fatal("channel fired before Advance")
	default:
	}

	c.Advance(time.Second)

	select {
	case <-ch:
	default:
		t.Fatal("channel did not fire after Advance")
	}
}
