// Package pool implements the bounded connection pool between the service
// and its backing store.
//
// A Pool is created once at startup with a Dialer for the configured backend
// (see package backend). Create opens every connection up front; after that
// the number of connections never changes. Each Get, Set or Remove checks out
// exactly one connection, runs a single backend command on it, and returns it
// before the call returns, whether the command succeeded or failed.
//
// Exhaustion is not an error: callers wait. The wait ends when a connection
// is released, when the caller's context ends, or when the optional acquire
// timeout (WithAcquireTimeout) elapses. Connections are not health-checked
// after checkout; a connection that fails a command is put back as is.
//
// Errors are github.com/jmgilman/go/errors values: backend failures carry
// CodeDatabase, bootstrap and dial failures CodeUnavailable (or the code the
// driver chose), and abandoned waits CodeTimeout.
package pool
