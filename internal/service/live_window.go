package service

import (
	"context"
	"sync"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/metrics"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/realtime"
)

// Change is one delta applied to a window since the previous delivery.
type Change struct {
	Kind    realtime.ChangeKind
	Message models.Message
}

// Window is the newest messages of a group in ascending (createdAt, id) order.
// It always holds every stored message at or after Messages[0].
type Window struct {
	GroupID  string
	Messages []models.Message
	Changes  []Change
	// Resynced is set when the window was refetched and deltas may have been missed.
	Resynced bool
}

// WindowHandle detaches a live window.
type WindowHandle interface {
	Close()
}

// LiveWindow keeps a bounded window of a group current and reports it after
// every change. Callbacks run on one goroutine per window, so deliveries for
// a group are ordered and never re-entrant.
type LiveWindow struct {
	groupID  string
	size     int
	svc      *MessageService
	sub      *realtime.Subscription
	onWindow func(Window)
	onError  func(error)

	messages []models.Message

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// OpenLiveWindow subscribes to a group's newest pageSize messages. onWindow
// fires once the initial load completes (even when empty) and after every
// change. On a transport failure onError fires once and the window stops.
//
// Close must not be called from inside onWindow or onError.
func (s *MessageService) OpenLiveWindow(ctx context.Context, groupID string, pageSize int, onWindow func(Window), onError func(error)) (WindowHandle, error) {
	const op = "service.OpenLiveWindow"

	if _, err := s.lookupGroup(op, groupID); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	lw := &LiveWindow{
		groupID:  groupID,
		size:     clampPageSize(pageSize),
		svc:      s,
		onWindow: onWindow,
		onError:  onError,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	// Subscribe before the initial load so no change can fall between them.
	lw.sub = s.broker.Subscribe(groupID)

	metrics.LiveWindows.Inc()
	go lw.run(runCtx)
	return lw, nil
}

// Close stops deliveries and returns once no callback is running.
func (lw *LiveWindow) Close() {
	lw.closeOnce.Do(func() {
		lw.cancel()
		<-lw.done
		lw.sub.Close()
		metrics.LiveWindows.Dec()
	})
}

func (lw *LiveWindow) run(ctx context.Context) {
	defer close(lw.done)

	if !lw.refetch(ctx, nil, false) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-lw.sub.Failed():
			lw.fail(ctx, lw.sub.Err())
			return
		case <-lw.sub.Lagged():
			metrics.WindowResyncs.Inc()
			if !lw.refetch(ctx, nil, true) {
				return
			}
		case ev := <-lw.sub.Events():
			if !lw.apply(ctx, ev) {
				return
			}
		}
	}
}

func (lw *LiveWindow) apply(ctx context.Context, ev realtime.ChangeEvent) bool {
	msg := ev.Message
	msg.DeliveryState = models.DeliveryConfirmed
	change := []Change{{Kind: ev.Kind, Message: msg}}

	switch ev.Kind {
	case realtime.ChangeAdded, realtime.ChangeModified:
		if !lw.upsert(msg, ev.Kind == realtime.ChangeAdded) {
			return true
		}
	case realtime.ChangeRemoved:
		if lw.indexOf(msg.ID) < 0 {
			// Outside the window; holders of older pages still need to hear about it.
			lw.deliver(change, false)
			return true
		}
		// Backfill from the store so the window stays full.
		metrics.WindowResyncs.Inc()
		return lw.refetch(ctx, change, false)
	default:
		return true
	}

	lw.deliver(change, false)
	return true
}

// upsert places msg in order and trims the window to size. It reports whether
// the window changed.
func (lw *LiveWindow) upsert(msg models.Message, insert bool) bool {
	if i := lw.indexOf(msg.ID); i >= 0 {
		lw.messages[i] = msg
		return true
	}
	if !insert {
		return false
	}
	if len(lw.messages) >= lw.size && models.Before(&msg, &lw.messages[0]) {
		return false
	}

	pos := len(lw.messages)
	for pos > 0 && models.Before(&msg, &lw.messages[pos-1]) {
		pos--
	}
	lw.messages = append(lw.messages, models.Message{})
	copy(lw.messages[pos+1:], lw.messages[pos:])
	lw.messages[pos] = msg

	if over := len(lw.messages) - lw.size; over > 0 {
		lw.messages = append([]models.Message(nil), lw.messages[over:]...)
	}
	return true
}

func (lw *LiveWindow) indexOf(id string) int {
	for i := range lw.messages {
		if lw.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (lw *LiveWindow) refetch(ctx context.Context, changes []Change, resynced bool) bool {
	msgs, err := lw.svc.loadWindow(ctx, lw.groupID, lw.size)
	if err != nil {
		lw.fail(ctx, err)
		return false
	}
	models.SortChronological(msgs)
	for i := range msgs {
		msgs[i].DeliveryState = models.DeliveryConfirmed
	}
	lw.messages = msgs
	lw.deliver(changes, resynced)
	return true
}

func (lw *LiveWindow) deliver(changes []Change, resynced bool) {
	if lw.onWindow == nil {
		return
	}
	snapshot := make([]models.Message, len(lw.messages))
	copy(snapshot, lw.messages)
	lw.onWindow(Window{
		GroupID:  lw.groupID,
		Messages: snapshot,
		Changes:  changes,
		Resynced: resynced,
	})
}

func (lw *LiveWindow) fail(ctx context.Context, err error) {
	// A cancelled context means Close is in progress, not a transport failure.
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = realtime.ErrBrokerClosed
	}
	if lw.onError != nil {
		lw.onError(apperr.Transport("service.LiveWindow", err))
	}
}
