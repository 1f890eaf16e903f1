package streaming

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	m := NewManager(8)
	ch := m.Subscribe("run-1", 8)
	defer m.Unsubscribe("run-1", ch)

	m.Publish("run-1", Event{RunID: "run-1", Type: EventPhaseEntered, Phase: "clarify"})
	m.Publish("run-1", Event{RunID: "run-1", Type: EventPhaseEntered, Phase: "analyze"})

	first := <-ch
	second := <-ch
	assert.Equal(t, uint64(0), first.Seq)
	assert.Equal(t, uint64(1), second.Seq)
	assert.Equal(t, "clarify", first.Phase)
}

func TestReplaySinceReturnsOnlyNewer(t *testing.T) {
	m := NewManager(8)
	for i := 0; i < 5; i++ {
		m.Publish("run-1", Event{RunID: "run-1", Type: EventSectionStatusChanged, Timestamp: time.Now()})
	}

	replayed := m.ReplaySince("run-1", 2)
	require.Len(t, replayed, 2)
	assert.Equal(t, uint64(3), replayed[0].Seq)
	assert.Equal(t, uint64(4), replayed[1].Seq)

	assert.Nil(t, m.ReplaySince("unknown-run", 0))
}

func TestRingOverwritesOldest(t *testing.T) {
	m := NewManager(3)
	for i := 0; i < 5; i++ {
		m.Publish("run-1", Event{RunID: "run-1", Type: EventToolCallStarted})
	}

	replayed := m.ReplaySince("run-1", 0)
	require.Len(t, replayed, 3)
	assert.Equal(t, uint64(2), replayed[0].Seq)
	assert.Equal(t, uint64(4), replayed[2].Seq)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	m := NewManager(8)
	ch := m.Subscribe("run-1", 1)
	defer m.Unsubscribe("run-1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Publish("run-1", Event{RunID: "run-1", Type: EventToolCallEnded})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestConcurrentPublishSubscribeUnsubscribe(t *testing.T) {
	m := NewManager(64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			m.Publish("run-1", Event{RunID: "run-1", Type: EventToolCallEnded})
		}
	}()

	for i := 0; i < 200; i++ {
		ch := m.Subscribe("run-1", 4)
		for len(ch) > 0 {
			<-ch
		}
		m.Unsubscribe("run-1", ch)
	}
	wg.Wait()
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager(8)
	ch := m.Subscribe("run-1", 1)
	m.Unsubscribe("run-1", ch)
	_, open := <-ch
	assert.False(t, open)
}
