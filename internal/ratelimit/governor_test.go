package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovernorNeverLimited(t *testing.T) {
	g := NewGovernor(60 * time.Second)
	st := g.Status()
	assert.False(t, st.InCooldown)
	assert.Equal(t, 0, st.RemainingSeconds())
}

func TestGovernorCooldownWindow(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGovernorWithClock(60*time.Second, func() time.Time { return clock })

	g.RecordLimited()
	st := g.Status()
	require.True(t, st.InCooldown)
	assert.InDelta(t, 60, st.RemainingSeconds(), 1)

	clock = clock.Add(30 * time.Second)
	st = g.Status()
	require.True(t, st.InCooldown)
	assert.Equal(t, 30, st.RemainingSeconds())

	clock = clock.Add(30 * time.Second)
	st = g.Status()
	assert.False(t, st.InCooldown)
	assert.Equal(t, 0, st.RemainingSeconds())
}

func TestGovernorRecordExtendsCooldown(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGovernorWithClock(60*time.Second, func() time.Time { return clock })

	g.RecordLimited()
	clock = clock.Add(50 * time.Second)
	g.RecordLimited()
	clock = clock.Add(50 * time.Second)

	st := g.Status()
	require.True(t, st.InCooldown)
	assert.Equal(t, 10, st.RemainingSeconds())
}
