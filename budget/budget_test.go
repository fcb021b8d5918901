package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUncappedBudgetNeverExceeds(t *testing.T) {
	b := New(nil, nil)
	b.Start()
	assert.False(t, b.IsTimeExceeded())
	assert.False(t, b.IsCostExceeded())
	assert.Nil(t, b.RemainingSeconds())
}

func TestCostCeilingExceeded(t *testing.T) {
	ceiling := 1.0
	b := New(nil, &ceiling)
	b.Start()
	assert.False(t, b.IsCostExceeded())
	b.AddCost(0.6)
	assert.False(t, b.IsCostExceeded())
	b.AddCost(0.5)
	assert.True(t, b.IsCostExceeded())
	assert.InDelta(t, 1.1, b.SpentUSD(), 0.0001)
}

func TestCostExceededNeverResets(t *testing.T) {
	ceiling := 1.0
	b := New(nil, &ceiling)
	b.Start()
	b.AddCost(2.0)
	assert.True(t, b.IsCostExceeded())
	// accumulated cost only grows; no operation decreases it
	assert.True(t, b.IsCostExceeded())
}

func TestTimeCeilingExceeded(t *testing.T) {
	ms := int64(10)
	b := New(&ms, nil)
	b.Start()
	assert.False(t, b.IsTimeExceeded())
	time.Sleep(25 * time.Millisecond)
	assert.True(t, b.IsTimeExceeded())
}

func TestCloneResetsCountersKeepsCeilings(t *testing.T) {
	ms := int64(5000)
	usd := 2.0
	b := New(&ms, &usd)
	b.Start()
	b.AddCost(1.0)
	time.Sleep(5 * time.Millisecond)

	clone := b.Clone()
	assert.Equal(t, int64(5000), *clone.MSCeiling())
	assert.Equal(t, 2.0, *clone.USDCeiling())
	assert.Equal(t, 0.0, clone.SpentUSD())
	assert.Equal(t, int64(0), clone.ElapsedMS())
}

func TestStartIsIdempotent(t *testing.T) {
	ms := int64(1000)
	b := New(&ms, nil)
	b.Start()
	time.Sleep(5 * time.Millisecond)
	first := b.ElapsedMS()
	b.Start() // no-op
	assert.GreaterOrEqual(t, b.ElapsedMS(), first)
}

func TestMinReturnsTighterDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Min(2*time.Second, 5*time.Second))
	assert.Equal(t, 2*time.Second, Min(5*time.Second, 2*time.Second))
}

func TestRemainingDurationUncappedIsLarge(t *testing.T) {
	b := New(nil, nil)
	b.Start()
	assert.Greater(t, b.RemainingDuration(), 24*time.Hour)
}
