// Package http exposes the license state over HTTP. Handlers stay thin: they
// decode and validate the request, call the license manager or the device
// fingerprinter, and render JSON or an RFC 7807 problem.
//
// # Routes
//
//	GET    /api/license/status             current decision
//	POST   /api/license/revalidate         drop the cache and re-read the file
//	POST   /api/license/import             verify and install {"license": {...}}
//	DELETE /api/license                    uninstall
//	GET    /api/license/features           features available under the decision
//	GET    /api/license/features/{feature} whether one feature is allowed
//	GET    /api/license/fingerprint        device hash and degraded components
//	GET    /api/license/fingerprint/components  raw components, dev mode only
//	GET    /api/license/gate/summary?mode= summary mode to run, downgraded if unlicensed
//	GET    /api/license/gate/export/{fmt}  403 unless the export format is licensed
//	GET    /api/health                     liveness with a license summary
//	GET    /metrics                        Prometheus scrape endpoint
//
// The raw fingerprint components and the license token never appear in a
// response or a log line.
package http
