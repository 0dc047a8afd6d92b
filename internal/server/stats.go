package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/Tyrowin/chatwave/internal/realtime"
)

// Snapshot is the engine state reported on /stats and in the periodic log.
type Snapshot struct {
	Connections   int                    `json:"connections"`
	Rooms         int                    `json:"rooms"`
	PendingEvicts int                    `json:"pending_evictions"`
	Dispatch      realtime.StatsSnapshot `json:"dispatch"`
}

// Snapshot reports the live engine counters.
func (s *Server) Snapshot() Snapshot {
	return Snapshot{
		Connections:   s.registry.Count(),
		Rooms:         s.index.RoomCount(),
		PendingEvicts: s.queue.Len(),
		Dispatch:      s.dispatcher.Stats(),
	}
}

type snapshotter interface {
	Snapshot() Snapshot
}

// statsReporter logs the engine state on every tick.
type statsReporter struct {
	log      *slog.Logger
	source   snapshotter
	interval time.Duration
}

func newStatsReporter(log *slog.Logger, source snapshotter, interval time.Duration) *statsReporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &statsReporter{log: log, source: source, interval: interval}
}

func (r *statsReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := r.source.Snapshot()
			r.log.Info("Realtime stats",
				"connections", snap.Connections,
				"rooms", snap.Rooms,
				"pending_evictions", snap.PendingEvicts,
				"dispatches", snap.Dispatch.Dispatches,
				"delivered", snap.Dispatch.Delivered,
				"failed", snap.Dispatch.Failed,
				"evictions", snap.Dispatch.Evictions)
		}
	}
}
