// pkg/lakehouse/async.go
package lakehouse

import "grizzly/pkg/database"

// SaveAsync runs Save on a background goroutine. The callback is invoked
// exactly once, with the save's error. There is no cancellation: once
// dispatched, the save runs to completion or failure. Concurrent saves to
// the same directory are serialized by the caller, not here.
func (lh *Lakehouse) SaveAsync(db *database.Database, done func(error)) {
	go func() {
		done(lh.Save(db))
	}()
}

// LoadAsync runs Load on a background goroutine. The callback is invoked
// exactly once with either the reconstructed database (ownership transfers
// to the callback) or an error.
func (lh *Lakehouse) LoadAsync(done func(*database.Database, error)) {
	go func() {
		done(lh.Load())
	}()
}
