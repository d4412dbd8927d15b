package circulation

import (
	"strconv"
	"sync/atomic"
	"time"
)

// ReceiptPrefix starts every receipt number.
const ReceiptPrefix = "BRW-"

// ReceiptGenerator issues BRW-<unix millis> receipt numbers. When the clock
// has not moved past the last issued value it issues last+1, so one
// generator never repeats itself. Safe for concurrent use.
type ReceiptGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewReceiptGenerator returns a generator reading time from now, or time.Now when nil.
func NewReceiptGenerator(now func() time.Time) *ReceiptGenerator {
	if now == nil {
		now = time.Now
	}
	return &ReceiptGenerator{now: now}
}

// Next returns a receipt number greater than every one issued before.
func (g *ReceiptGenerator) Next() string {
	for {
		last := g.last.Load()
		millis := g.now().UnixMilli()
		if millis <= last {
			millis = last + 1
		}
		if g.last.CompareAndSwap(last, millis) {
			return ReceiptPrefix + strconv.FormatInt(millis, 10)
		}
	}
}
