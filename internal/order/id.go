// Package order tracks the bot's own orders and their confirmation state.
package order

import (
	"crypto/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quantfeed/tradecore/internal/schema"
)

const (
	// orderIDMaxLen is the exchange-imposed client order id limit.
	orderIDMaxLen = 32
	// minSuffixLen keeps enough random tail to make collisions within one
	// counter window practically impossible.
	minSuffixLen = 6

	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	defaultResetInterval = 5 * time.Minute
)

// IDGenerator produces unique, bounded-length client order ids. The id is
// a monotonic per-session counter, the pair, and a millisecond timestamp,
// padded to 32 characters with a random alphanumeric suffix. The counter
// resets periodically to bound prefix growth; the reset shares the
// generator mutex so it is indivisible from id generation.
type IDGenerator struct {
	mu        sync.Mutex
	increment uint64
	clock     func() time.Time

	resetDone chan struct{}
	closeOnce sync.Once
}

// NewIDGenerator starts a generator whose counter resets every
// resetInterval (<= 0 uses the 5 minute default). clock may be nil.
func NewIDGenerator(resetInterval time.Duration, clock func() time.Time) *IDGenerator {
	if resetInterval <= 0 {
		resetInterval = defaultResetInterval
	}
	if clock == nil {
		clock = time.Now
	}
	g := &IDGenerator{
		clock:     clock,
		resetDone: make(chan struct{}),
	}
	go g.resetLoop(resetInterval)
	return g
}

// Next returns a fresh client order id for the pair, at most 32 characters.
func (g *IDGenerator) Next(pair schema.Pair) string {
	g.mu.Lock()
	g.increment++
	prefix := strconv.FormatUint(g.increment, 10) +
		strings.ReplaceAll(string(pair), "-", "") +
		strconv.FormatInt(g.clock().UnixMilli(), 10)
	g.mu.Unlock()

	if len(prefix) > orderIDMaxLen-minSuffixLen {
		prefix = prefix[:orderIDMaxLen-minSuffixLen]
	}
	return prefix + randomTail(orderIDMaxLen-len(prefix))
}

// Close stops the counter reset timer.
func (g *IDGenerator) Close() {
	g.closeOnce.Do(func() {
		close(g.resetDone)
	})
}

func (g *IDGenerator) resetLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.resetDone:
			return
		case <-ticker.C:
			g.mu.Lock()
			g.increment = 0
			g.mu.Unlock()
		}
	}
}

func randomTail(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp-derived tail rather than panicking mid-trade.
		ts := strconv.FormatInt(time.Now().UnixNano(), 36)
		for len(ts) < n {
			ts += ts
		}
		return ts[:n]
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
