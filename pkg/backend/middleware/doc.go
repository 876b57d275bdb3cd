// Package middleware provides HTTP middleware for the dispatch API: bearer
// key authentication, CORS, request IDs, structured request logging and
// panic recovery.
package middleware
