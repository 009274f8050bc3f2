// Package main hosts the page proxy entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server answers GET / and /api/worker with the target page given by ?url=. Adding
//     cheerio=1 or text=1 returns the extracted visible text as JSON instead of the raw upstream body. Health,
//     readiness and Prometheus metrics live on /healthz, /readyz and /metrics.
//   - Admission: internal/ratelimit keeps a fixed-window quota per client (first X-Forwarded-For address). Rejected
//     requests get 429 with Retry-After and never reach a strategy. A sweeper goroutine evicts idle clients.
//   - Fetch pipeline: internal/orchestrator tries the remote browser renderer first (only when a token is
//     configured) and falls back to a plain Colly GET. Every failure is classified and chained so the final error
//     envelope shows what each strategy hit.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     counters track admissions, strategy attempts and outcomes.
//
// Operational notes:
//   - Each strategy bounds itself with its own timeout; a client hanging up does not cancel an admitted fetch.
//   - Browser sessions are always closed, on success and failure alike.
//   - The process reacts to SIGINT/SIGTERM by draining in-flight requests for up to 10 seconds.
//
// Quick checklist:
//   - Configure env vars: PAGEPROXY_SERVER_PORT or PORT, PAGEPROXY_RENDER_TOKEN or BROWSERLESS_TOKEN,
//     PAGEPROXY_RATELIMIT_MAX_REQUESTS, PAGEPROXY_SERVER_FAILURES_AS_OK.
//   - Run locally: go run ./cmd/pageproxy serve --config config.yaml (or rely solely on env overrides).
//   - One-shot: go run ./cmd/pageproxy fetch https://example.com --text
package main
