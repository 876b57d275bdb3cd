// Package backendtypes defines types for backend server configuration and API communication.
//
// This package provides shared type definitions used by the backend package and by
// pkg/config. It separates type definitions from implementation to allow clean imports
// without circular dependencies.
//
// # Configuration Types
//
//   - ServerConfig: HTTP server settings (host, port, timeouts)
//   - AuthConfig: Bearer token authentication
//   - LoggingConfig: Logging settings
//   - CORSConfig: Cross-origin resource sharing settings
//
// # Request and Response Types
//
//   - SendRequest: body of POST /api/send
//   - SendResponse: dispatch outcome returned inside APIResponse.Data
//   - APIResponse, APIError: the envelope every endpoint answers with
//   - HealthResponse: health check responses
//
// # Usage
//
//	import "github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
//
//	config := backendtypes.BackendConfig{
//	    Server: backendtypes.ServerConfig{Port: 8080},
//	}
package backendtypes
