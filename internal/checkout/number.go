package checkout

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewOrderNumber returns ORD-<unix millis>-<5 random digits>. The orders
// table enforces uniqueness; a collision surfaces as a conflict.
func NewOrderNumber(t time.Time) string {
	return fmt.Sprintf("ORD-%d-%05d", t.UnixMilli(), rand.IntN(100000))
}
