// Package handlers provides the HTTP handlers of the dispatch API: sending
// email, listing transports, health checks and metrics, along with helpers
// for the standard JSON response envelope.
package handlers
