// Package budget implements the budget envelope (§4.3): an (elapsed,
// spent) tuple with optional wall-clock and cost ceilings, clonable so a
// declaration-time budget doesn't decay across invocations.
package budget

import (
	"sync"
	"time"
)

// Budget tracks remaining time and cost against optional ceilings. The
// zero value is an uncapped budget. All methods are safe for concurrent
// use by the single step that owns a given instance plus any readers
// racing to check it (e.g. a sibling branch reading a shared flow budget).
type Budget struct {
	mu sync.Mutex

	msCeiling  *int64 // nil = uncapped
	usdCeiling *float64

	start          time.Time
	started        bool
	accumulatedUSD float64
}

// New creates a budget with the given ceilings. Either may be nil for
// uncapped. The clock does not start until Start is called.
func New(msCeiling *int64, usdCeiling *float64) *Budget {
	return &Budget{msCeiling: msCeiling, usdCeiling: usdCeiling}
}

// Start begins the wall clock. Idempotent: only the first call takes
// effect, so cloning-then-starting at invocation time (rather than
// declaration time) is the caller's responsibility — see Clone.
func (b *Budget) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		b.start = time.Now()
		b.started = true
	}
}

// Clone returns a fresh Budget with the same ceilings and zeroed counters.
// The step executor clones once per invocation so a declaration-time
// budget's clock starts when execution starts, never at declaration (§4.3,
// §3 invariant: "Budget ms is measured from the start of the invocation").
func (b *Budget) Clone() *Budget {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Budget{msCeiling: b.msCeiling, usdCeiling: b.usdCeiling}
}

func (b *Budget) elapsedMS() int64 {
	if !b.started {
		return 0
	}
	return time.Since(b.start).Milliseconds()
}

// RemainingSeconds returns max(0, ms-elapsed)/1000, or nil if uncapped.
func (b *Budget) RemainingSeconds() *float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msCeiling == nil {
		return nil
	}
	remMS := *b.msCeiling - b.elapsedMS()
	if remMS < 0 {
		remMS = 0
	}
	secs := float64(remMS) / 1000.0
	return &secs
}

// RemainingDuration is RemainingSeconds as a time.Duration, or a very long
// duration if uncapped (callers combine it with other timeouts via min()).
func (b *Budget) RemainingDuration() time.Duration {
	secs := b.RemainingSeconds()
	if secs == nil {
		return 365 * 24 * time.Hour
	}
	return time.Duration(*secs * float64(time.Second))
}

// IsTimeExceeded reports whether the wall-clock ceiling has elapsed.
func (b *Budget) IsTimeExceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msCeiling == nil {
		return false
	}
	return b.elapsedMS() >= *b.msCeiling
}

// IsCostExceeded reports whether accumulated cost has reached the USD
// ceiling. Once true, it never transitions back to false (§8 invariant) —
// accumulated cost is monotonically non-decreasing by construction.
func (b *Budget) IsCostExceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.usdCeiling == nil {
		return false
	}
	return b.accumulatedUSD >= *b.usdCeiling
}

// AddCost accumulates a reported provider cost.
func (b *Budget) AddCost(usd float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accumulatedUSD += usd
}

// SpentUSD returns the accumulated cost so far.
func (b *Budget) SpentUSD() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accumulatedUSD
}

// ElapsedMS returns milliseconds since Start was called.
func (b *Budget) ElapsedMS() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elapsedMS()
}

// MSCeiling and USDCeiling expose the configured ceilings (nil = uncapped).
func (b *Budget) MSCeiling() *int64     { return b.msCeiling }
func (b *Budget) USDCeiling() *float64  { return b.usdCeiling }

// Min returns the tighter of two remaining durations — used by the step
// executor to compute the effective provider-call timeout from the step
// budget and the flow budget (§4.4 step 4).
func Min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
