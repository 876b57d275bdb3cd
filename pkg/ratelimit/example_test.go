package ratelimit_test

import (
	"context"
	"fmt"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/testutil"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/ratelimit"
)

// ExampleGate shows three back-to-back sends spaced by the gate
func ExampleGate() {
	clock := testutil.NewFakeClock(time.Time{})
	gate := ratelimit.NewGate(5*time.Second,
		ratelimit.WithClock(clock.Now),
		ratelimit.WithSleeper(clock.Sleep),
	)

	for i := 1; i <= 3; i++ {
		waited, err := gate.Acquire(context.Background())
		if err != nil {
			fmt.Printf("acquire failed: %v\n", err)
			return
		}
		fmt.Printf("send %d waited %v\n", i, waited.Round(time.Second))
	}

	// Output:
	// send 1 waited 0s
	// send 2 waited 5s
	// send 3 waited 5s
}
