package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultBillingPrefix starts every billing number.
const DefaultBillingPrefix = "U4RAD"

// CounterStore hands out a monotonically increasing sequence. Next returns
// the current value and advances the stored counter.
type CounterStore interface {
	Next(ctx context.Context) (int, error)
}

// MemoryCounter is an in-process CounterStore.
type MemoryCounter struct {
	mu    sync.Mutex
	value int
}

// NewMemoryCounter starts the sequence at start.
func NewMemoryCounter(start int) *MemoryCounter {
	return &MemoryCounter{value: start}
}

func (c *MemoryCounter) Next(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.value
	c.value++
	return v, nil
}

// BillingNumberer formats billing numbers as PREFIX-YYYYMMDD-NNN.
type BillingNumberer struct {
	Prefix  string
	Counter CounterStore
	Clock   func() time.Time
}

// NewBillingNumberer uses the default prefix and the UTC wall clock.
func NewBillingNumberer(counter CounterStore) *BillingNumberer {
	return &BillingNumberer{
		Prefix:  DefaultBillingPrefix,
		Counter: counter,
		Clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Next consumes one counter value and returns the billing number for it.
func (b *BillingNumberer) Next(ctx context.Context) (string, error) {
	n, err := b.Counter.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("next billing counter: %w", err)
	}
	return b.Format(n), nil
}

// Format renders counter value n as a billing number dated today.
func (b *BillingNumberer) Format(n int) string {
	prefix := b.Prefix
	if prefix == "" {
		prefix = DefaultBillingPrefix
	}
	return fmt.Sprintf("%s-%s-%03d", prefix, b.Clock().Format("20060102"), n)
}
