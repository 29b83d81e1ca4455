// Package api hosts the optional operator HTTP server that runs alongside a
// crawl. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /stats for the live frontier snapshot.
//   - GET /failures for the failure log recorded so far.
package api
