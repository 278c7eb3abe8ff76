package dialog

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/guesthub/pkg/logging"
)

// ErrDispatcherClosed is returned by Enqueue after Stop.
var ErrDispatcherClosed = errors.New("dialog: dispatcher closed")

const (
	defaultDispatchWorkers = 4
	defaultDispatchBuffer  = 256
)

// Handler processes one inbound message.
type Handler interface {
	HandleIncoming(ctx context.Context, in Incoming) Outcome
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of concurrent handlers.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithBuffer sets the queue capacity.
func WithBuffer(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// WithOutcomeHook observes every outcome after handling.
func WithOutcomeHook(fn func(Outcome)) DispatcherOption {
	return func(d *Dispatcher) {
		d.hook = fn
	}
}

// Dispatcher decouples webhook acknowledgement from dialog handling. Messages
// are handled by a pool of workers with no ordering across or within
// conversations.
type Dispatcher struct {
	handler Handler
	logger  *logging.Logger
	workers int
	buffer  int
	hook    func(Outcome)

	queue  chan Incoming
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(handler Handler, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if handler == nil {
		panic("dialog: dispatcher handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		handler: handler,
		logger:  logger.Component("dispatcher"),
		workers: defaultDispatchWorkers,
		buffer:  defaultDispatchBuffer,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan Incoming, d.buffer)
	return d
}

// Start launches the workers. They exit when ctx is done or after Stop once
// the queue drains.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx, i+1)
	}
}

// Enqueue hands a message to the pool, blocking while the queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, in Incoming) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new messages and waits for queued ones to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until all workers exit.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, workerID int) {
	defer d.wg.Done()
	d.logger.Debug("dispatcher worker started", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher worker stopping", "worker_id", workerID)
			return
		case in, ok := <-d.queue:
			if !ok {
				return
			}
			d.handle(ctx, in, workerID)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, in Incoming, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling inbound message",
				"worker_id", workerID,
				"channel", in.Channel,
				"external_message_id", in.ExternalMessageID,
				"panic", r,
			)
		}
	}()

	out := d.handler.HandleIncoming(ctx, in)
	if d.hook != nil {
		d.hook(out)
	}
}
