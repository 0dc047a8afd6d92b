package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultDeliveryTimeout   = 5 * time.Second
	DefaultFanoutConcurrency = 64
)

// DispatcherConfig bounds fan-out. Zero values take the defaults.
type DispatcherConfig struct {
	DeliveryTimeout time.Duration
	Concurrency     int
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultFanoutConcurrency
	}
	return c
}

// DeliveryReport summarizes one fan-out. Skipped counts handles that were
// deregistered between snapshot and delivery.
type DeliveryReport struct {
	Room          RoomID
	Kind          Kind
	Targets       int
	Delivered     int
	Failed        int
	Skipped       int
	FailedHandles []Handle
	Err           error
}

// Stats holds running dispatch totals.
type Stats struct {
	dispatches atomic.Uint64
	delivered  atomic.Uint64
	failed     atomic.Uint64
	skipped    atomic.Uint64
	evictions  atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Dispatches uint64 `json:"dispatches"`
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	Skipped    uint64 `json:"skipped"`
	Evictions  uint64 `json:"evictions"`
}

// Snapshot reads every counter.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Dispatches: s.dispatches.Load(),
		Delivered:  s.delivered.Load(),
		Failed:     s.failed.Load(),
		Skipped:    s.skipped.Load(),
		Evictions:  s.evictions.Load(),
	}
}

type dispatchOptions struct {
	exclude map[Handle]struct{}
}

// Option tunes a single dispatch.
type Option func(*dispatchOptions)

// ExcludeHandle leaves h out of the target set.
func ExcludeHandle(h Handle) Option {
	return func(o *dispatchOptions) {
		if o.exclude == nil {
			o.exclude = make(map[Handle]struct{})
		}
		o.exclude[h] = struct{}{}
	}
}

// Dispatcher fans events out to room subscribers.
type Dispatcher struct {
	registry *Registry
	index    *Index
	evictor  Evictor
	config   DispatcherConfig
	log      *slog.Logger
	stats    Stats
}

// NewDispatcher creates a Dispatcher resolving targets through registry and
// index. Failed targets go to evictor; a nil evictor closes their sinks.
func NewDispatcher(log *slog.Logger, registry *Registry, index *Index, evictor Evictor, config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		index:    index,
		evictor:  evictor,
		config:   config.withDefaults(),
		log:      log,
	}
}

// Stats returns the running delivery totals.
func (d *Dispatcher) Stats() StatsSnapshot { return d.stats.Snapshot() }

// Dispatch delivers evt to every current subscriber of room and returns once
// every attempt has finished.
func (d *Dispatcher) Dispatch(ctx context.Context, room RoomID, evt Event, opts ...Option) DeliveryReport {
	return d.deliver(ctx, room, evt, d.index.Subscribers(room), opts)
}

// Broadcast delivers evt to every registered connection.
func (d *Dispatcher) Broadcast(ctx context.Context, evt Event, opts ...Option) DeliveryReport {
	return d.deliver(ctx, "", evt, d.registry.Handles(), opts)
}

// SendTo delivers evt to a single connection.
func (d *Dispatcher) SendTo(ctx context.Context, h Handle, evt Event) DeliveryReport {
	return d.deliver(ctx, evt.Room, evt, []Handle{h}, nil)
}

func (d *Dispatcher) deliver(ctx context.Context, room RoomID, evt Event, targets []Handle, opts []Option) DeliveryReport {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.exclude) > 0 {
		kept := targets[:0:0]
		for _, h := range targets {
			if _, skip := o.exclude[h]; !skip {
				kept = append(kept, h)
			}
		}
		targets = kept
	}

	report := DeliveryReport{Room: room, Kind: evt.Kind, Targets: len(targets)}
	d.stats.dispatches.Add(1)
	if len(targets) == 0 {
		return report
	}

	frame, err := Encode(evt)
	if err != nil {
		d.log.Error("Unable to encode event", "event", evt.Kind, "room_id", room, "error", err)
		report.Err = err
		return report
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.config.Concurrency)
	for _, h := range targets {
		g.Go(func() error {
			sink, ok := d.registry.Sink(h)
			if !ok {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return nil
			}

			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.DeliveryTimeout)
			err := sink.Deliver(dctx, frame)
			cancel()

			mu.Lock()
			if err != nil {
				report.Failed++
				report.FailedHandles = append(report.FailedHandles, h)
			} else {
				report.Delivered++
			}
			mu.Unlock()

			if err != nil {
				d.log.Warn("Delivery failed, evicting connection", "handle", h, "event", evt.Kind, "room_id", room, "error", err)
				d.evict(h, sink)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.stats.delivered.Add(uint64(report.Delivered))
	d.stats.failed.Add(uint64(report.Failed))
	d.stats.skipped.Add(uint64(report.Skipped))
	return report
}

// evict hands h to the eviction queue, falling back to closing the sink so
// the transport runs its own disconnect path.
func (d *Dispatcher) evict(h Handle, sink Sink) {
	d.stats.evictions.Add(1)
	if d.evictor != nil && d.evictor.Evict(h) {
		return
	}
	if err := sink.Close(); err != nil {
		d.log.Debug("Closing evicted sink", "handle", h, "error", err)
	}
}
