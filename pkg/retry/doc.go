// Package retry runs a transport repeatedly until it delivers or its attempt
// budget is spent.
//
// A Schedule holds the budget and the backoff: the delay after failed
// attempt n is BaseDelay * 2^n, capped at MaxDelay when MaxDelay is set. No
// delay follows the final attempt, and a schedule with MaxAttempts of zero
// never calls the transport.
//
// A Scheduler applies a Schedule. A false result, an error and a panic all
// count as one failed attempt:
//
//	s := retry.NewScheduler(retry.DefaultSchedule(), retry.WithLogger(logger))
//	ok := s.Run(ctx, transport, msg)
package retry
