package browser

import (
	"context"
	"errors"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

// ErrDisabled is returned by Noop when browser sessions are turned off.
var ErrDisabled = errors.New("browser sessions disabled")

// Noop is a SessionFactory that never starts a browser.
type Noop struct{}

// Acquire always fails with ErrDisabled.
func (Noop) Acquire(context.Context) (capture.Session, error) {
	return nil, ErrDisabled
}
