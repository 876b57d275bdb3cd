// Package backend serves a dispatch.Dispatcher over HTTP.
//
// Routes:
//
//	GET  /health                          transport health, 503 when every transport is down
//	GET  /status                          liveness
//	GET  /version                         build version
//	POST /api/send                        dispatch one email
//	GET  /api/transports                  transports in fallback order
//	GET  /api/metrics                     dispatch counters and rate gate stats
//	GET  /api/metrics/system              runtime stats
//	GET  /api/metrics/transports/{name}   per-transport counters
//
// Every response uses the backendtypes.APIResponse envelope.
//
// # Example
//
//	d, err := factory.NewDefaultFactory().BuildDispatcher(cfg)
//	if err != nil {
//	    return err
//	}
//	server := backend.NewServer(cfg.Backend(), d, backend.WithLogger(logger))
//	return server.Start()
package backend
