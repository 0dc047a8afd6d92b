//go:generate go run go.uber.org/mock/mockgen -source=supervisor.go -destination=../mocks/mock_supervisor.go -package=mocks
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

var ErrWorkerPanic = errors.New("worker panicked")

// Worker is a long running background task. Returning nil means the work is
// done and the worker is not restarted.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerName returns the type name of w.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Supervisor runs workers in their own goroutines and restarts them after a
// panic or an error, until its context is canceled.
type Supervisor struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *slog.Logger
	workers []Worker
}

// New returns an empty Supervisor.
func New(log *slog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// Add registers workers to start on Run. It returns s for chaining.
func (s *Supervisor) Add(worker ...Worker) *Supervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run blocks until every worker has returned.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start runs worker under supervision. A panic in one worker never stops the
// supervisor.
func (s *Supervisor) Start(ctx context.Context, worker Worker) {
	s.wg.Add(1)
	name := WorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info("Stopping worker", "name", name)
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("Worker panic", "name", name, "panic", r)
						err = ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info("Worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(waitTimeBeforeRestart):
			}
		}
	}()
}

// Stop cancels every worker. Run returns once they have all exited.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
