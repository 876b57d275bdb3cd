package retry

import (
	"math"
	"time"
)

const maxDuration = time.Duration(math.MaxInt64)

// exponentialDelay returns base * 2^attempt. Results that would overflow
// saturate at the largest representable duration; a positive limit caps the
// result.
func exponentialDelay(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := maxDuration
	// base << attempt stays in range while base <= MaxInt64 >> attempt
	if attempt < 63 && base <= maxDuration>>uint(attempt) { // #nosec G115 -- attempt is in [0, 63)
		delay = base << uint(attempt)
	}

	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}
