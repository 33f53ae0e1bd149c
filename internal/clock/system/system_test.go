package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestFixedClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2022, time.July, 14, 9, 0, 0, 0, time.FixedZone("EEST", 3*3600))
	clk := Fixed(at)
	require.True(t, clk.Now().Equal(at))
	require.Equal(t, time.UTC, clk.Now().Location())
	require.Equal(t, clk.Now(), clk.Now())
}
