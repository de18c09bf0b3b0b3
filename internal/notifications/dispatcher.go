// Package notifications queues and delivers order notifications to customers.
package notifications

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
)

const (
	defaultQueueSize = 1024
	defaultWorkers   = 4
)

// Deliverer hands a message to its final channel.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// DispatcherParams wires a Dispatcher.
type DispatcherParams struct {
	Deliverer Deliverer
	Logger    *logger.Logger
	Metrics   *metrics.OrderMetrics
	QueueSize int
	Workers   int
}

// Dispatcher decouples notification delivery from the request path. Dispatch
// never blocks: when the queue is full the message is dropped and logged.
type Dispatcher struct {
	queue     chan Message
	deliverer Deliverer
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
	workers   int
}

// NewDispatcher builds a dispatcher with a bounded queue.
func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	if p.Deliverer == nil {
		return nil, errors.New("deliverer required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	size := p.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		queue:     make(chan Message, size),
		deliverer: p.Deliverer,
		logg:      p.Logger,
		metrics:   p.Metrics,
		workers:   workers,
	}, nil
}

// Dispatch enqueues msg and reports whether it was accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		d.metrics.IncDispatchDropped()
		fields := map[string]any{
			"notification_type": msg.Type,
			"user_id":           msg.UserID.String(),
		}
		if msg.OrderID != nil {
			fields["order_id"] = msg.OrderID.String()
		}
		d.logg.Warn(d.logg.WithFields(ctx, fields), "notification.dropped")
		return false
	}
}

// Run delivers queued messages until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case msg := <-d.queue:
					d.deliver(gctx, msg)
				}
			}
		})
	}
	err := g.Wait()
	d.drain(context.WithoutCancel(ctx))
	return err
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	if err := d.deliverer.Deliver(context.WithoutCancel(ctx), msg); err != nil {
		fields := map[string]any{
			"notification_type": msg.Type,
			"user_id":           msg.UserID.String(),
		}
		if msg.OrderID != nil {
			fields["order_id"] = msg.OrderID.String()
		}
		d.logg.Error(d.logg.WithFields(ctx, fields), "notification.delivery_failed", err)
	}
}

// Pending reports how many messages are waiting in the queue.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
