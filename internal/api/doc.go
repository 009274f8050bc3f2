// Package api hosts the HTTP server, middleware, and handlers of the proxy.
// Notable routes:
//   - GET / and GET /api/worker fetch ?url= (add cheerio=1 or text=1 for
//     extracted text instead of raw HTML).
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//
// Every response, including OPTIONS preflights and errors, carries permissive
// CORS headers.
package api
