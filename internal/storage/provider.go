// Package storage mirrors finished report segments to a blob store, so a
// long audit run survives the machine it started on.
package storage

import "context"

// Provider uploads one named report segment. It matches the mirror hook of
// the results writer.
type Provider interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// NoOp is the provider used when no mirror is configured.
type NoOp struct{}

// Upload does nothing and always succeeds.
func (NoOp) Upload(_ context.Context, _ string, _ []byte) error {
	return nil
}
