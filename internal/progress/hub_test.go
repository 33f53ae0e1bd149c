package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRegionStart))
	hub.Emit(sampleEvent(StageRegionDone))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)

	hub.Emit(sampleEvent(StageRunDone))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitDropsWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.EqualValues(t, 0, hub.Dropped(), "first drop is reported and reset")
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Stage: StageRunStart})
	evt := sampleEvent(StageRegionDone)
	evt.Region = ""
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
	assert.True(t, sink.Closed())
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	hub.Emit(sampleEvent(StageRegionStart))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	assert.True(t, sink.Closed())

	hub.Emit(sampleEvent(StageRunDone))
	assert.Len(t, sink.Batches(), 1, "events after close are ignored")
}

func TestHubKeepsFlushingAfterSinkError(t *testing.T) {
	t.Parallel()

	failing := &erroringSink{}
	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, sink)

	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))

	assert.Len(t, sink.Batches(), 2)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{name: "missing run id", mutate: func(e *Event) { e.RunID = "" }},
		{name: "missing year", mutate: func(e *Event) { e.Year = 0 }},
		{name: "missing timestamp", mutate: func(e *Event) { e.TS = time.Time{} }},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "FETCH" }},
		{name: "region stage without region", mutate: func(e *Event) { e.Region = "" }},
		{name: "negative duration", mutate: func(e *Event) { e.Dur = -time.Second }},
	}
	require.NoError(t, sampleEvent(StageRegionDone).Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt := sampleEvent(StageRegionDone)
			tt.mutate(&evt)
			assert.Error(t, evt.Validate())
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

type erroringSink struct{}

func (erroringSink) Consume(context.Context, []Event) error { return errors.New("sink down") }
func (erroringSink) Close(context.Context) error            { return nil }

func sampleEvent(stage Stage) Event {
	return Event{
		RunID:  "run-1",
		Year:   2021,
		TS:     time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC),
		Stage:  stage,
		Region: "AB",
	}
}
