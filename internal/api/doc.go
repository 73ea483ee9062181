// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/profiles/{user_id}/crawl to submit GitHub and LinkedIn URLs.
//   - GET /v1/portfolios/{user_id} for the generated portfolio.
package api
