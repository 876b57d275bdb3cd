// Package types defines the core interfaces and data structures for the mail dispatch kit.
// It includes the Transport contract, the Message value passed to transports,
// sentinel errors, and the metrics event and snapshot structures shared by the
// dispatcher, the metrics collector, and the HTTP backend.
package types
