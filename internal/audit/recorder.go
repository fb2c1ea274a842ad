package audit

import (
	"context"
	"time"

	"jobdesk.org/internal/ids"
	"jobdesk.org/internal/obs"
)

const defaultQueryLimit = 50

// Recorder is the write-side facade over a Store. Record never fails the
// calling operation: store errors are logged at a lower tier and swallowed.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder wraps a store. A nil store silently drops events, which keeps
// the auth paths testable without audit plumbing.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an event, stamping ID, time, and a default severity where
// the caller did not. Failures never propagate.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.store == nil {
		return
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.Time.IsZero() {
		event.Time = r.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if err := r.store.Append(ctx, &event); err != nil {
		obs.LogWarn("audit append failed", map[string]any{
			"event": string(event.Type),
			"error": err.Error(),
		})
	}
}

// Query returns events matching the filter, newest-first. A zero limit is
// replaced with a sane default.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]Event, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	return r.store.Query(ctx, filter)
}

// Cleanup removes events older than the retention window and reports how
// many were pruned. Explicitly a maintenance operation: nothing calls it
// per-request.
func (r *Recorder) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if r == nil || r.store == nil {
		return 0, nil
	}
	cutoff := r.now().UTC().Add(-retention)
	return r.store.DeleteBefore(ctx, cutoff)
}
