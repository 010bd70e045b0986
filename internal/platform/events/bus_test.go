package events

import (
	"testing"
	"time"
)

func TestBus_PublishReachesSubscriber(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("queue/u1")
	defer cancel()

	b.Publish(Event{Topic: "queue/u1", Kind: "updated", At: time.Now()})

	select {
	case e := <-ch:
		if e.Kind != "updated" {
			t.Errorf("expected kind updated, got %s", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_TopicIsolation(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("queue/u1")
	defer cancel()

	b.Publish(Event{Topic: "queue/u2", Kind: "updated"})

	select {
	case e := <-ch:
		t.Errorf("unexpected event for other topic: %+v", e)
	default:
	}
}

func TestBus_CancelClosesChannelIdempotently(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("cover/u1")
	cancel()
	cancel() // second call must not panic

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	if n := b.SubscriberCount("cover/u1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestBus_FullBufferDoesNotBlockPublisher(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe("queue/u1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Topic: "queue/u1", Kind: "updated"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}

func TestFanout_DeliversToAll(t *testing.T) {
	a, b := NewBus(), NewBus()
	chA, cancelA := a.Subscribe("t")
	chB, cancelB := b.Subscribe("t")
	defer cancelA()
	defer cancelB()

	Fanout{a, b}.Publish(Event{Topic: "t", Kind: "created"})

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("fanout missed a publisher")
		}
	}
}
