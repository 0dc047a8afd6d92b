package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/chatwave/internal/auth"
	"github.com/Tyrowin/chatwave/internal/mocks"
	"github.com/Tyrowin/chatwave/internal/realtime"
)

var errSinkBroken = errors.New("sink broken")

// recordingSink stores every frame it receives. It can be told to fail or to
// block until the delivery context expires.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed int
	fail   bool
	block  bool
}

func (s *recordingSink) Deliver(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	fail, block := s.fail, s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errSinkBroken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *recordingSink) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type decodedFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func (s *recordingSink) Events() []decodedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]decodedFrame, 0, len(s.frames))
	for _, raw := range s.frames {
		var f decodedFrame
		if err := json.Unmarshal(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func (s *recordingSink) Names() []string {
	var names []string
	for _, f := range s.Events() {
		names = append(names, f.Event)
	}
	return names
}

func newIdentity(username string) auth.Identity {
	return auth.Identity{UserID: uuid.NewString(), Username: username}
}

type harness struct {
	registry   *realtime.Registry
	index      *realtime.Index
	dispatcher *realtime.Dispatcher
	controller *realtime.Controller
	queue      *realtime.EvictionQueue
	verifier   *mocks.MockVerifier
	membership *mocks.MockMembership
}

func newHarness(t *testing.T, config realtime.DispatcherConfig) *harness {
	t.Helper()
	return newHarnessWith(t, config, realtime.ControllerConfig{Strict: true})
}

func newHarnessWith(t *testing.T, config realtime.DispatcherConfig, controllerConfig realtime.ControllerConfig) *harness {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	h := &harness{
		registry:   realtime.NewRegistry(),
		index:      realtime.NewIndex(),
		queue:      realtime.NewEvictionQueue(16),
		verifier:   mocks.NewMockVerifier(ctrl),
		membership: mocks.NewMockMembership(ctrl),
	}
	h.dispatcher = realtime.NewDispatcher(log, h.registry, h.index, h.queue, config)
	presence := realtime.NewPresence(log, h.dispatcher)
	h.controller = realtime.NewController(log, h.registry, h.index, h.dispatcher, presence,
		h.verifier, h.membership, controllerConfig)
	return h
}

// connect registers a fresh connection for identity through the controller.
func (h *harness) connect(t *testing.T, identity auth.Identity) (realtime.Handle, *recordingSink) {
	t.Helper()
	handle := realtime.NewHandle()
	sink := &recordingSink{}
	credential := "token-" + string(handle)
	h.verifier.EXPECT().Verify(credential).Return(identity, nil)
	if _, err := h.controller.Connect(context.Background(), handle, credential, sink); err != nil {
		t.Fatalf("connect %s: %v", identity.Username, err)
	}
	return handle, sink
}

// allowAll makes every membership check succeed.
func (h *harness) allowAll() {
	h.membership.EXPECT().IsMember(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
}
