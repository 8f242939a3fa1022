// Package notify pushes high-risk findings to an external channel while the
// run is still in progress, so a reviewer does not wait for the final report.
package notify

import "context"

// Finding is the payload published for one high-risk attachment.
type Finding struct {
	TreeID   string   `json:"tree_id"`
	Filename string   `json:"filename"`
	Link     string   `json:"link"`
	Risk     int      `json:"risk"`
	Alerts   []string `json:"alerts,omitempty"`
	Words    []string `json:"words,omitempty"`
}

// Provider delivers one finding.
type Provider interface {
	Notify(ctx context.Context, finding Finding) error
}

// NoOp is the provider used when no notification channel is configured.
type NoOp struct{}

// Notify does nothing and always succeeds.
func (NoOp) Notify(_ context.Context, _ Finding) error {
	return nil
}
