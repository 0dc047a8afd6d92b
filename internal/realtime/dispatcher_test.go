package realtime_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/chatwave/internal/mocks"
	"github.com/Tyrowin/chatwave/internal/realtime"
)

type fanout struct {
	registry   *realtime.Registry
	index      *realtime.Index
	dispatcher *realtime.Dispatcher
}

func newFanout(t *testing.T, evictor realtime.Evictor, config realtime.DispatcherConfig) *fanout {
	t.Helper()
	registry := realtime.NewRegistry()
	index := realtime.NewIndex()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return &fanout{
		registry:   registry,
		index:      index,
		dispatcher: realtime.NewDispatcher(log, registry, index, evictor, config),
	}
}

func (f *fanout) join(t *testing.T, room realtime.RoomID, sink realtime.Sink) realtime.Handle {
	t.Helper()
	h := realtime.NewHandle()
	_, err := f.registry.Register(h, newIdentity("user-"+string(h)), sink)
	require.NoError(t, err)
	_, err = f.registry.Attach(h, room, f.index)
	require.NoError(t, err)
	return h
}

func chatMessage(room realtime.RoomID, content string) realtime.Event {
	return realtime.MessageEvent(realtime.Message{
		ID:             "m-" + content,
		Room:           room,
		SenderID:       "sender",
		SenderUsername: "alice",
		Content:        content,
		Type:           "text",
		CreatedAt:      time.Now(),
	})
}

func TestDispatcher_DeliversToEverySubscriber(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{})
	a, b, outsider := &recordingSink{}, &recordingSink{}, &recordingSink{}
	f.join(t, "general", a)
	f.join(t, "general", b)
	f.join(t, "random", outsider)

	// When a message is dispatched to the room
	report := f.dispatcher.Dispatch(context.Background(), "general", chatMessage("general", "hi"))

	// Then every subscriber got the same encoded frame and no one else did
	req.Equal(2, report.Targets)
	req.Equal(2, report.Delivered)
	req.Zero(report.Failed)
	req.Equal([]string{realtime.FrameReceiveMessage}, a.Names())
	req.Equal([]string{realtime.FrameReceiveMessage}, b.Names())
	req.Equal(a.frames[0], b.frames[0])
	req.Empty(outsider.Names())
	req.Equal("hi", a.Events()[0].Data["content"])
}

func TestDispatcher_EmptyRoom(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{})

	report := f.dispatcher.Dispatch(context.Background(), "nobody", chatMessage("nobody", "hi"))
	req.Zero(report.Targets)
	req.Zero(report.Delivered)
	req.Equal(uint64(1), f.dispatcher.Stats().Dispatches)
}

func TestDispatcher_FailedDeliveryIsEvicted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFanout(t, evictor, realtime.DispatcherConfig{})

	healthy := &recordingSink{}
	broken := &recordingSink{fail: true}
	f.join(t, "general", healthy)
	brokenHandle := f.join(t, "general", broken)

	// Given an evictor accepting the broken handle
	evictor.EXPECT().Evict(brokenHandle).Return(true).Times(1)

	report := f.dispatcher.Dispatch(context.Background(), "general", chatMessage("general", "hi"))

	// Then the healthy subscriber is unaffected and the broken one is not retried
	req.Equal(1, report.Delivered)
	req.Equal(1, report.Failed)
	req.Equal([]realtime.Handle{brokenHandle}, report.FailedHandles)
	req.Len(healthy.Names(), 1)
	req.Zero(broken.Closed())
	req.Equal(uint64(1), f.dispatcher.Stats().Evictions)
}

func TestDispatcher_FullEvictionQueueClosesSink(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	evictor := mocks.NewMockEvictor(ctrl)
	f := newFanout(t, evictor, realtime.DispatcherConfig{})

	sink := mocks.NewMockSink(ctrl)
	h := f.join(t, "general", sink)

	gomock.InOrder(
		sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errSinkBroken),
		evictor.EXPECT().Evict(h).Return(false),
		sink.EXPECT().Close().Return(nil),
	)

	report := f.dispatcher.Dispatch(context.Background(), "general", chatMessage("general", "hi"))
	req.Equal(1, report.Failed)
}

func TestDispatcher_SlowSubscriberTimesOut(t *testing.T) {
	req := require.New(t)
	queue := realtime.NewEvictionQueue(4)
	f := newFanout(t, queue, realtime.DispatcherConfig{DeliveryTimeout: 50 * time.Millisecond})

	fast := &recordingSink{}
	slow := &recordingSink{block: true}
	f.join(t, "general", fast)
	slowHandle := f.join(t, "general", slow)

	start := time.Now()
	report := f.dispatcher.Dispatch(context.Background(), "general", chatMessage("general", "hi"))

	// Then dispatch is bounded by the delivery timeout
	req.Less(time.Since(start), time.Second)
	req.Equal(1, report.Delivered)
	req.Equal([]realtime.Handle{slowHandle}, report.FailedHandles)
	req.Equal(1, queue.Len())
	req.Len(fast.Names(), 1)
}

func TestDispatcher_SkipsDeregisteredHandles(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{})
	sink := &recordingSink{}
	f.join(t, "general", sink)

	// Given a handle still present in the index but gone from the registry
	ghost := realtime.NewHandle()
	f.index.Subscribe("general", ghost)

	report := f.dispatcher.Dispatch(context.Background(), "general", chatMessage("general", "hi"))
	req.Equal(2, report.Targets)
	req.Equal(1, report.Delivered)
	req.Equal(1, report.Skipped)
	req.Zero(report.Failed)
}

func TestDispatcher_ExcludeHandle(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{})
	typist, reader := &recordingSink{}, &recordingSink{}
	typistHandle := f.join(t, "general", typist)
	f.join(t, "general", reader)

	evt := realtime.TypingEvent("general", newIdentity("alice"), true)
	report := f.dispatcher.Dispatch(context.Background(), "general", evt, realtime.ExcludeHandle(typistHandle))

	req.Equal(1, report.Targets)
	req.Empty(typist.Names())
	req.Equal([]string{realtime.FrameTypingStart}, reader.Names())
}

func TestDispatcher_PreservesOrderPerSource(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{Concurrency: 4})
	sinks := make([]*recordingSink, 8)
	for i := range sinks {
		sinks[i] = &recordingSink{}
		f.join(t, "general", sinks[i])
	}

	// When one source dispatches a sequence of messages
	for i := range 20 {
		f.dispatcher.Dispatch(context.Background(), "general", chatMessage("general", fmt.Sprint(i)))
	}

	// Then every subscriber observed them in invocation order
	for _, sink := range sinks {
		events := sink.Events()
		req.Len(events, 20)
		for i, evt := range events {
			req.Equal(fmt.Sprint(i), evt.Data["content"])
		}
	}
}

func TestDispatcher_Broadcast(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{})
	a, b := &recordingSink{}, &recordingSink{}
	ah := f.join(t, "one", a)
	f.join(t, "two", b)

	report := f.dispatcher.Broadcast(context.Background(), realtime.PresenceEvent(newIdentity("carol"), true), realtime.ExcludeHandle(ah))
	req.Equal(1, report.Delivered)
	req.Empty(a.Names())
	req.Equal([]string{realtime.FrameUserConnected}, b.Names())
}

func TestDispatcher_SendTo(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{})
	a, b := &recordingSink{}, &recordingSink{}
	ah := f.join(t, "general", a)
	f.join(t, "general", b)

	f.dispatcher.SendTo(context.Background(), ah, realtime.RejectedEvent("join_room", realtime.ErrNotAMember))
	req.Equal([]string{realtime.FrameError}, a.Names())
	req.Equal(realtime.CodeNotAMember, a.Events()[0].Data["code"])
	req.Empty(b.Names())
}

func TestDispatcher_InvalidEventIsNotDelivered(t *testing.T) {
	req := require.New(t)
	f := newFanout(t, nil, realtime.DispatcherConfig{})
	sink := &recordingSink{}
	f.join(t, "general", sink)

	report := f.dispatcher.Dispatch(context.Background(), "general", realtime.Event{Kind: realtime.KindMessage})
	req.ErrorIs(report.Err, realtime.ErrInvalidCommand)
	req.Empty(sink.Names())
}
