// Package capture defines the types shared by the scrape orchestration layer:
// capture tasks and their results, the captured payload, the run summary, the
// error taxonomy, and the interfaces implemented by browser sessions, sinks,
// ledgers, and publishers.
package capture
