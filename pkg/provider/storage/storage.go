// Package storage defines the ObjectStore interface used to stage normalized
// audio for long-running transcription.
//
// Staged objects are short-lived by contract: the transcription runner
// deletes them after the job completes or fails, so implementations do not
// need lifecycle rules of their own.
package storage

import "context"

// ObjectStore is the abstraction over a bucket-style blob store.
//
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Upload stores data under name and returns the backend-native URI that
	// downstream services understand (e.g., "gs://bucket/name").
	Upload(ctx context.Context, name string, data []byte, contentType string) (uri string, err error)

	// Delete removes the object. Deleting a nonexistent object is not an
	// error; cleanup paths may run more than once.
	Delete(ctx context.Context, name string) error
}
