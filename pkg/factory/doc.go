// Package factory provides the transport factory pattern for creating
// transports from configuration. It includes transport registration,
// configuration validation, and assembly of a complete dispatcher.
package factory
