// Package dispatch provides the email dispatcher: a rate gate, a per-transport
// retry schedule with exponential backoff, and ordered fallback across
// transports, combined behind a single Send call that reports only whether
// the message went out.
package dispatch
