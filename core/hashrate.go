package core

import (
	"sync"
	"time"

	"bithopper/util"
)

// minElapsed keeps a zero-length window from dividing by zero.
const minElapsed = 1e-3

// HashrateMeter estimates hash rate from difficulty-1 shares over a
// sliding window.
type HashrateMeter struct {
	mu          sync.Mutex
	shares      uint64
	windowStart time.Time
	rate        float64

	now func() time.Time
}

func NewHashrateMeter() *HashrateMeter {
	return newHashrateMeter(time.Now)
}

func newHashrateMeter(now func() time.Time) *HashrateMeter {
	return &HashrateMeter{windowStart: now(), now: now}
}

// AddShares 累加当前窗口的份额
func (m *HashrateMeter) AddShares(n uint64) {
	m.mu.Lock()
	m.shares += n
	m.mu.Unlock()
}

// Tick closes the current window, computes its rate in MH/s and opens a new
// window.
func (m *HashrateMeter) Tick() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	elapsed := now.Sub(m.windowStart).Seconds()
	if elapsed < minElapsed {
		elapsed = minElapsed
	}

	m.rate = util.SharesToHashrate(m.shares, elapsed)
	m.shares = 0
	m.windowStart = now
	return m.rate
}

// Rate returns the rate computed by the last Tick.
func (m *HashrateMeter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}
