package orders

import (
	"fmt"
	"time"
)

// NumberFor derives a human-readable order number from the current order
// count and a timestamp suffix. Collisions are caught by the unique index on
// order_number, not by this function; callers retry with a bumped count.
func NumberFor(count int64, at time.Time) string {
	return fmt.Sprintf("ORD-%06d-%05d", count+1, at.Unix()%100000)
}
