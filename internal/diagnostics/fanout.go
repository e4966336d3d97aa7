package diagnostics

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Fanout records every event on all of its sinks concurrently. A failing sink
// does not stop the others; their errors are joined.
type Fanout struct {
	sinks []Sink

	closeOnce sync.Once
	closeErr  error
}

// NewFanout ignores nil sinks.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of wrapped sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Record(ctx context.Context, ev Event) error {
	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, s := range f.sinks {
		i, s := i, s
		g.Go(func() error {
			errs[i] = s.Record(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close closes every sink, in order, and joins their errors. Later calls
// return the first result.
func (f *Fanout) Close() error {
	f.closeOnce.Do(func() {
		var errs []error
		for _, s := range f.sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}
