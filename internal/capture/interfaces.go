package capture

import "context"

// Session owns one live browser process. A session is used by a single
// worker slot for a single task and must be released exactly once.
type Session interface {
	Extract(ctx context.Context, task Task) (Capture, error)
	Release()
}

// SessionFactory starts fresh browser sessions.
type SessionFactory interface {
	Acquire(ctx context.Context) (Session, error)
}

// Sink persists captures under a key derived from season and matchweek.
// Writes to the same key overwrite the previous entry.
type Sink interface {
	Write(ctx context.Context, capture Capture) (WriteReceipt, error)
	Exists(ctx context.Context, season string, matchweek int) (bool, error)
}

// SinkReader loads captures back for downstream stages.
type SinkReader interface {
	Read(ctx context.Context, season string, matchweek int) (Capture, error)
	Exists(ctx context.Context, season string, matchweek int) (bool, error)
}

// WriteReceipt describes a completed sink write.
type WriteReceipt struct {
	URI         string
	ContentHash string
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Ledger records the latest outcome per matchweek.
type Ledger interface {
	Record(ctx context.Context, entry LedgerEntry) error
}

// Publisher pushes capture notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
