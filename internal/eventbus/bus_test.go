package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(context.Background(), TopicBuild)
	defer sub.Close()

	bus.Publish(context.Background(), TopicBuild, BuildEvent{Name: "example.com.", QType: 1, Stage: StageStart})

	select {
	case ev := <-sub.Ch:
		be, ok := ev.Data.(BuildEvent)
		if !ok {
			t.Fatalf("event data type = %T, want BuildEvent", ev.Data)
		}
		if be.Name != "example.com." || be.Stage != StageStart {
			t.Errorf("event = %+v, want name=example.com. stage=start", be)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDropsOnFullSubscriber(t *testing.T) {
	bus := New(1)
	sub := bus.Subscribe(context.Background(), TopicBuild)
	defer sub.Close()

	// First publish fills the buffered channel; the rest must be dropped,
	// not block.
	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), TopicBuild, BuildEvent{Name: "example.com.", Stage: StageFinish})
	}
}

func TestSubscribeUnsubscribesOnCancel(t *testing.T) {
	bus := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(ctx, TopicVerify)
	cancel()

	select {
	case _, ok := <-sub.Ch:
		if ok {
			t.Error("channel should be closed after cancel, got an open event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestRecentReturnsLastNEvents(t *testing.T) {
	bus := New(4)

	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), TopicBuild, BuildEvent{QType: uint16(i), Stage: StageFinish})
	}

	recent := bus.Recent(TopicBuild, 3)
	if len(recent) != 3 {
		t.Fatalf("Recent() returned %d events, want 3", len(recent))
	}
	last := recent[2].Data.(BuildEvent)
	if last.QType != 4 {
		t.Errorf("last recent event QType = %d, want 4", last.QType)
	}
}

func TestRecentCapsAtRingSize(t *testing.T) {
	bus := New(4)

	for i := 0; i < 100; i++ {
		bus.Publish(context.Background(), TopicBuild, BuildEvent{QType: uint16(i), Stage: StageFinish})
	}

	recent := bus.Recent(TopicBuild, 1000)
	if len(recent) != 32 {
		t.Errorf("Recent() kept %d events, want the 32-event ring cap", len(recent))
	}
	if recent[len(recent)-1].Data.(BuildEvent).QType != 99 {
		t.Error("Recent() should keep the most recently published events")
	}
}

func TestRecentEmptyTopic(t *testing.T) {
	bus := New(4)
	if recent := bus.Recent(TopicBuild, 10); len(recent) != 0 {
		t.Errorf("Recent() on an untouched topic = %v, want empty", recent)
	}
}
