// Package api hosts the operator HTTP surface of a scrape process. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/current for the live run snapshot.
//   - GET /v1/ledger/{season}/{matchweek} for the last recorded outcome.
package api
