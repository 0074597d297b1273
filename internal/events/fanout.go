package events

import (
	"context"
	"errors"
	"fmt"

	"ai-screening-call-service/internal/models"
)

// Sink receives flushed call summaries.
type Sink interface {
	Notify(ctx context.Context, s models.CallSummary) error
}

// Fanout delivers each summary to every sink, in order. A failing sink does
// not stop delivery to the rest.
type Fanout struct {
	sinks []namedSink
}

type namedSink struct {
	name string
	sink Sink
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a sink under name. Nil sinks are ignored.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	if s != nil {
		f.sinks = append(f.sinks, namedSink{name: name, sink: s})
	}
	return f
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Notify implements the session notifier.
func (f *Fanout) Notify(ctx context.Context, s models.CallSummary) error {
	var errs []error
	for _, ns := range f.sinks {
		if err := ns.sink.Notify(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ns.name, err))
		}
	}
	return errors.Join(errs...)
}
