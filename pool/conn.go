package pool

import "context"

// Conn is one live backend session. A Conn is used by a single goroutine at a
// time: the pool checks it out to exactly one operation and takes it back
// afterwards.
type Conn interface {
	// Get returns the stored value; found is false when no row matches.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set upserts key→value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes any row for key and reports whether one was removed.
	Remove(ctx context.Context, key string) (existed bool, err error)
	// Close ends the session.
	Close(ctx context.Context) error
}

// Dialer opens sessions to a backing store.
type Dialer interface {
	// Bootstrap checks connectivity and creates the key/value namespace if
	// it does not exist. It must be idempotent.
	Bootstrap(ctx context.Context) error
	// Dial opens one session.
	Dial(ctx context.Context) (Conn, error)
}
