package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
)

func receive(t *testing.T, sub *Subscription) ChangeEvent {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
		return ChangeEvent{}
	}
}

func TestLocalBrokerDeliversOnlyToGroup(t *testing.T) {
	b := NewLocalBroker()
	cs := b.Subscribe("computer-science")
	defer cs.Close()
	gen := b.Subscribe("general-chat")
	defer gen.Close()

	ev := ChangeEvent{GroupID: "computer-science", Kind: ChangeAdded, Message: models.Message{ID: "m1"}}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := receive(t, cs); got.Message.ID != "m1" {
		t.Errorf("got %q, want m1", got.Message.ID)
	}
	select {
	case ev := <-gen.Events():
		t.Errorf("unexpected event for other group: %+v", ev)
	default:
	}
}

func TestLocalBrokerPreservesPublishOrder(t *testing.T) {
	b := NewLocalBroker()
	sub := b.Subscribe("g")
	defer sub.Close()

	for _, id := range []string{"a", "b", "c"} {
		_ = b.Publish(context.Background(), ChangeEvent{GroupID: "g", Kind: ChangeAdded, Message: models.Message{ID: id}})
	}
	for _, want := range []string{"a", "b", "c"} {
		if got := receive(t, sub).Message.ID; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestSubscriptionCloseDetaches(t *testing.T) {
	b := NewLocalBroker()
	sub := b.Subscribe("g")
	if b.Subscribers("g") != 1 {
		t.Fatalf("Subscribers = %d, want 1", b.Subscribers("g"))
	}
	sub.Close()
	sub.Close()
	if b.Subscribers("g") != 0 {
		t.Errorf("Subscribers after Close = %d, want 0", b.Subscribers("g"))
	}
}

func TestSubscriptionLagsInsteadOfBlocking(t *testing.T) {
	b := NewLocalBroker()
	sub := b.Subscribe("g")
	defer sub.Close()

	for i := 0; i < subscriptionBuffer+5; i++ {
		_ = b.Publish(context.Background(), ChangeEvent{GroupID: "g", Kind: ChangeAdded})
	}

	select {
	case <-sub.Lagged():
	default:
		t.Fatalf("expected lagged signal after overflow")
	}
}

func TestFailReachesCurrentAndFutureSubscriptions(t *testing.T) {
	b := NewLocalBroker()
	before := b.Subscribe("g")
	boom := errors.New("connection reset")
	b.Fail(boom)
	after := b.Subscribe("h")

	for _, sub := range []*Subscription{before, after} {
		select {
		case <-sub.Failed():
		default:
			t.Fatalf("subscription %s not failed", sub.GroupID)
		}
		if !errors.Is(sub.Err(), boom) {
			t.Errorf("Err = %v, want %v", sub.Err(), boom)
		}
	}
}
