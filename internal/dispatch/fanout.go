package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/metrics"
)

// #region fanout

// Fanout delivers every batch to all named sinks concurrently. A failing
// sink does not stop the others; failures are joined into one error.
type Fanout struct {
	names []string
	sinks []Sink
}

// NewFanout returns an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a sink under name, which labels its dispatch errors.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	f.names = append(f.names, name)
	f.sinks = append(f.sinks, s)
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Dispatch sends cmds to every sink.
func (f *Fanout) Dispatch(ctx context.Context, cmds []actuation.Command) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for i, s := range f.sinks {
		name := f.names[i]
		g.Go(func() error {
			if err := s.Dispatch(ctx, cmds); err != nil {
				metrics.DispatchErrors.WithLabelValues(name).Inc()
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// #endregion fanout
