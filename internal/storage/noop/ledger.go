// Package noop provides a ledger that discards entries.
package noop

import (
	"context"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

// Ledger satisfies capture.Ledger without persisting anything.
type Ledger struct{}

// Record discards the entry.
func (Ledger) Record(context.Context, capture.LedgerEntry) error { return nil }

var _ capture.Ledger = Ledger{}
