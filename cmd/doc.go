// Package cmd defines the matchweek-ingest CLI.
//
// Architecture overview:
//   - scrape: plans one task per requested matchweek, runs them on a bounded pool of Chrome sessions, and
//     writes each capture to the bronze layer of the configured blob store (memory/local/GCS). Outcomes are
//     recorded in the ledger (sqlite/Postgres) and announced on Pub/Sub when enabled.
//   - transform: reads bronze captures back through the sink, cleans and flattens the stats, and writes one
//     silver CSV per matchweek. It never talks to the browser.
//   - pipeline: scrape followed by transform of every usable matchweek; --skip-scrape runs the transform only.
//
// Operational notes:
//   - SIGINT/SIGTERM cancel the run context. Running tasks are abandoned at their next checkpoint, queued
//     tasks are reported as aborted, and the process exits non-zero.
//   - A run where at least one matchweek was captured (or reused with --resume) exits zero even if other
//     matchweeks failed; the summary table lists every failure.
//   - --metrics-addr (or metrics.addr) serves /healthz, /readyz, /metrics and the live run snapshot while the
//     command runs.
package cmd
