// Package realtime carries message change events from writers to open live windows.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
	// ChangeCursor moves a user's read cursor; it is published on CursorTopic.
	ChangeCursor ChangeKind = "cursor"
)

// ChangeEvent is one server-side change to a group's message collection or,
// for ChangeCursor, to a user's read cursor. GroupID is the routing topic.
type ChangeEvent struct {
	GroupID string             `msgpack:"g"`
	Kind    ChangeKind         `msgpack:"k"`
	Message models.Message     `msgpack:"m"`
	Cursor  *models.ReadCursor `msgpack:"c,omitempty"`
}

// CursorTopic is the topic carrying a user's read-cursor changes. Group IDs
// never contain a colon, so it cannot collide with a group.
func CursorTopic(userID string) string {
	return "cursors:" + userID
}

// CursorEvent announces that userID has read groupID up to lastRead.
func CursorEvent(userID, groupID string, lastRead time.Time) ChangeEvent {
	return ChangeEvent{
		GroupID: CursorTopic(userID),
		Kind:    ChangeCursor,
		Cursor:  &models.ReadCursor{UserID: userID, GroupID: groupID, LastRead: lastRead},
	}
}

// ErrBrokerClosed is reported to subscriptions when the broker shuts down.
var ErrBrokerClosed = errors.New("change feed closed")

// Broker fans change events out to subscribers of a group.
type Broker interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(groupID string) *Subscription
}

const subscriptionBuffer = 64

// Subscription receives the change events of one group until Close is called.
//
// Delivery never blocks the publisher. When the buffer is full the event is
// dropped and Lagged fires, after which the consumer must refetch its state.
type Subscription struct {
	GroupID string

	events chan ChangeEvent
	lagged chan struct{}
	failed chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
	detach func(*Subscription)
}

func newSubscription(groupID string, detach func(*Subscription)) *Subscription {
	return &Subscription{
		GroupID: groupID,
		events:  make(chan ChangeEvent, subscriptionBuffer),
		lagged:  make(chan struct{}, 1),
		failed:  make(chan struct{}),
		detach:  detach,
	}
}

func (s *Subscription) Events() <-chan ChangeEvent { return s.events }

func (s *Subscription) Lagged() <-chan struct{} { return s.lagged }

// Failed is closed when the feed behind the subscription breaks; Err explains why.
func (s *Subscription) Failed() <-chan struct{} { return s.failed }

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.detach != nil {
		s.detach(s)
	}
}

// deliver is called with the broker lock held.
func (s *Subscription) deliver(event ChangeEvent) {
	select {
	case s.events <- event:
	default:
		select {
		case s.lagged <- struct{}{}:
		default:
		}
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	close(s.failed)
}
