package events

import (
	"context"
	"sync"
)

// Recorder buffers events raised during one operation. The runner installs a
// recorder in the context before invoking the use case and drains it after
// the transaction commits. Events raised outside a recorded operation are
// discarded.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event to the buffer.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Drain returns the buffered events and empties the buffer.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := r.events
	r.events = nil
	return drained
}

type recorderKey struct{}

// WithRecorder stores a recorder in the context.
func WithRecorder(ctx context.Context, rec *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

// RecorderFromContext returns the recorder carried by the context, if any.
func RecorderFromContext(ctx context.Context) (*Recorder, bool) {
	rec, ok := ctx.Value(recorderKey{}).(*Recorder)
	return rec, ok
}

// Raise creates an event and buffers it on the context's recorder. The event
// becomes visible to subscribers only after the enclosing unit of work
// commits.
func Raise(ctx context.Context, name string, payload any) error {
	rec, ok := RecorderFromContext(ctx)
	if !ok {
		return nil
	}

	ev, err := New(name, payload)
	if err != nil {
		return err
	}

	rec.Record(ev)
	return nil
}
