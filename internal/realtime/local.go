package realtime

import (
	"context"
	"sync"

	"github.com/noteduco342/unichat-backend/internal/metrics"
)

// LocalBroker dispatches change events within the process.
type LocalBroker struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}
	err    error
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{groups: make(map[string]map[*Subscription]struct{})}
}

func (b *LocalBroker) Publish(ctx context.Context, event ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	metrics.ChangeEvents.WithLabelValues(string(event.Kind)).Inc()
	b.dispatch(event)
	return nil
}

func (b *LocalBroker) dispatch(event ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.groups[event.GroupID] {
		sub.deliver(event)
	}
}

func (b *LocalBroker) Subscribe(groupID string) *Subscription {
	sub := newSubscription(groupID, b.unsubscribe)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		sub.fail(b.err)
		return sub
	}
	subs, ok := b.groups[groupID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.groups[groupID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

func (b *LocalBroker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.groups[sub.GroupID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.groups, sub.GroupID)
	}
}

// Subscribers returns the number of open subscriptions for a group.
func (b *LocalBroker) Subscribers(groupID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[groupID])
}

// Fail breaks every current and future subscription with err.
func (b *LocalBroker) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return
	}
	b.err = err
	for _, subs := range b.groups {
		for sub := range subs {
			sub.fail(err)
		}
	}
}
