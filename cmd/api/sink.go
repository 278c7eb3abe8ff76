package main

import (
	"context"
	"sync/atomic"

	"github.com/wolfman30/guesthub/internal/dialog"
)

// lateSink forwards to a dispatcher bound after construction.
type lateSink struct {
	target atomic.Pointer[dialog.Dispatcher]
}

func (s *lateSink) bind(d *dialog.Dispatcher) { s.target.Store(d) }

func (s *lateSink) Enqueue(ctx context.Context, in dialog.Incoming) error {
	d := s.target.Load()
	if d == nil {
		return dialog.ErrDispatcherClosed
	}
	return d.Enqueue(ctx, in)
}
