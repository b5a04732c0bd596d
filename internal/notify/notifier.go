// Package notify tracks read cursors and publishes unread counts for the
// groups a user has visited.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/metrics"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/realtime"
	"github.com/noteduco342/unichat-backend/internal/service"
)

const DefaultWindowSize = 100

// CursorStore persists read cursors.
type CursorStore interface {
	UpsertMonotonic(ctx context.Context, userID, groupID string, lastRead time.Time) (time.Time, error)
	ListForUser(ctx context.Context, userID string) ([]models.ReadCursor, error)
}

// WindowSource opens live windows on group messages.
type WindowSource interface {
	OpenLiveWindow(ctx context.Context, groupID string, pageSize int, onWindow func(service.Window), onError func(error)) (service.WindowHandle, error)
}

// CursorFeed streams the read-cursor changes of a user, including those
// made by the user's other sessions.
type CursorFeed interface {
	SubscribeCursors(userID string) *realtime.Subscription
}

// Counts is the published unread state. Total is the sum of PerGroup.
type Counts struct {
	PerGroup map[string]int `json:"perGroup"`
	Total    int            `json:"total"`
}

// UnreadCount counts messages in window created after lastRead that userID
// did not write. An empty userID owns nothing, so every later message counts.
func UnreadCount(window []models.Message, lastRead time.Time, userID string) int {
	n := 0
	for i := range window {
		m := &window[i]
		if m.CreatedAt.After(lastRead) && !m.IsAuthoredBy(userID) {
			n++
		}
	}
	return n
}

type tracked struct {
	lastRead time.Time
	window   []models.Message
	count    int
	handle   service.WindowHandle
}

// Notifier is owned by one session. Initialize starts tracking the groups the
// user has read before; Dispose detaches every window.
type Notifier struct {
	cursors    CursorStore
	windows    WindowSource
	windowSize int
	feed       CursorFeed
	now        func() time.Time

	// publishMu keeps listener deliveries in publish order.
	publishMu sync.Mutex

	mu        sync.Mutex
	userID    string
	groups    map[string]*tracked
	listeners map[int]func(Counts)
	nextID    int
	last      Counts
	watch     *cursorWatch
}

type cursorWatch struct {
	sub  *realtime.Subscription
	stop chan struct{}
	done chan struct{}
}

func New(cursors CursorStore, windows WindowSource, windowSize int) *Notifier {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Notifier{
		cursors:    cursors,
		windows:    windows,
		windowSize: windowSize,
		now:        time.Now,
		groups:     make(map[string]*tracked),
		listeners:  make(map[int]func(Counts)),
		last:       Counts{PerGroup: map[string]int{}},
	}
}

// WithCursorFeed keeps the tracked groups and cursors in step with the
// user's other sessions after Initialize.
func (n *Notifier) WithCursorFeed(feed CursorFeed) *Notifier {
	n.feed = feed
	return n
}

// Initialize loads the user's read cursors and opens one window per group.
// Calling it again replaces the previous user's tracking.
func (n *Notifier) Initialize(ctx context.Context, userID string) error {
	const op = "notify.Initialize"

	n.detachAll()
	if userID == "" {
		return apperr.Permission(op, "Not signed in")
	}

	// Follow changes before listing so none falls between the two.
	var watch *cursorWatch
	if n.feed != nil {
		watch = &cursorWatch{
			sub:  n.feed.SubscribeCursors(userID),
			stop: make(chan struct{}),
			done: make(chan struct{}),
		}
	}

	cursors, err := n.cursors.ListForUser(ctx, userID)
	if err != nil {
		if watch != nil {
			watch.sub.Close()
		}
		return apperr.Transport(op, err)
	}

	n.mu.Lock()
	n.userID = userID
	n.watch = watch
	n.mu.Unlock()

	n.sync(ctx, cursors)
	if watch != nil {
		go n.watchCursors(ctx, userID, watch)
	}
	return nil
}

// sync tracks every group in cursors, raises known cursors and drops groups
// that are no longer listed.
func (n *Notifier) sync(ctx context.Context, cursors []models.ReadCursor) {
	listed := make(map[string]bool, len(cursors))
	for _, c := range cursors {
		listed[c.GroupID] = true
		n.applyCursor(ctx, c.GroupID, c.LastRead)
	}

	n.mu.Lock()
	var stale []string
	for id := range n.groups {
		if !listed[id] {
			stale = append(stale, id)
		}
	}
	n.mu.Unlock()
	for _, id := range stale {
		n.Untrack(id)
	}
	n.publish()
}

// applyCursor raises the cursor of a tracked group or starts tracking it.
func (n *Notifier) applyCursor(ctx context.Context, groupID string, lastRead time.Time) {
	n.mu.Lock()
	userID := n.userID
	t, ok := n.groups[groupID]
	if ok && lastRead.After(t.lastRead) {
		t.lastRead = lastRead
		t.count = UnreadCount(t.window, t.lastRead, n.userID)
	}
	n.mu.Unlock()

	if ok {
		return
	}
	if err := n.track(ctx, groupID, lastRead); err != nil {
		slog.Warn("track group unread", "user_id", userID, "group_id", groupID, "error", err)
	}
}

func (n *Notifier) watchCursors(ctx context.Context, userID string, w *cursorWatch) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-w.sub.Failed():
			slog.Warn("read cursor feed failed", "user_id", userID, "error", w.sub.Err())
			return
		case <-w.sub.Lagged():
			cursors, err := n.cursors.ListForUser(ctx, userID)
			if err != nil {
				slog.Warn("reload read cursors", "user_id", userID, "error", err)
				continue
			}
			n.sync(ctx, cursors)
		case ev := <-w.sub.Events():
			if ev.Kind != realtime.ChangeCursor || ev.Cursor == nil || ev.Cursor.UserID != userID {
				continue
			}
			n.applyCursor(ctx, ev.Cursor.GroupID, ev.Cursor.LastRead)
			n.publish()
		}
	}
}

// Dispose stops tracking and drops every listener.
func (n *Notifier) Dispose() {
	n.detachAll()
	n.mu.Lock()
	n.listeners = make(map[int]func(Counts))
	n.mu.Unlock()
}

func (n *Notifier) detachAll() {
	n.mu.Lock()
	watch := n.watch
	n.watch = nil
	n.mu.Unlock()
	if watch != nil {
		close(watch.stop)
		<-watch.done
		watch.sub.Close()
	}

	n.mu.Lock()
	groups := n.groups
	n.groups = make(map[string]*tracked)
	n.userID = ""
	n.last = Counts{PerGroup: map[string]int{}}
	n.mu.Unlock()

	for _, t := range groups {
		if t.handle != nil {
			t.handle.Close()
		}
	}
}

// track opens a window for groupID unless one is already open.
func (n *Notifier) track(ctx context.Context, groupID string, lastRead time.Time) error {
	n.mu.Lock()
	if _, ok := n.groups[groupID]; ok {
		n.mu.Unlock()
		return nil
	}
	userID := n.userID
	t := &tracked{lastRead: lastRead}
	n.groups[groupID] = t
	n.mu.Unlock()

	h, err := n.windows.OpenLiveWindow(ctx, groupID, n.windowSize,
		func(w service.Window) { n.onWindow(groupID, t, w) },
		func(err error) {
			slog.Warn("unread window failed", "user_id", userID, "group_id", groupID, "error", err)
			// A failed window cannot be closed from its own callback.
			go n.drop(groupID, t)
		})

	n.mu.Lock()
	current := n.groups[groupID] == t
	if err != nil && current {
		delete(n.groups, groupID)
	}
	if err == nil && current {
		t.handle = h
	}
	n.mu.Unlock()

	if err != nil {
		return err
	}
	if !current {
		// Untracked or disposed while opening.
		h.Close()
	}
	return nil
}

func (n *Notifier) onWindow(groupID string, t *tracked, w service.Window) {
	n.mu.Lock()
	if n.groups[groupID] != t {
		n.mu.Unlock()
		return
	}
	t.window = w.Messages
	t.count = UnreadCount(t.window, t.lastRead, n.userID)
	n.mu.Unlock()
	n.publish()
}

// MarkGroupRead moves the group's cursor to now, or to the newest tracked
// message when that is later, and starts tracking the group if needed.
// The stored cursor never moves backwards.
func (n *Notifier) MarkGroupRead(ctx context.Context, groupID string) error {
	const op = "notify.MarkGroupRead"

	n.mu.Lock()
	userID := n.userID
	lastRead := n.now().UTC()
	if t, ok := n.groups[groupID]; ok {
		if t.lastRead.After(lastRead) {
			lastRead = t.lastRead
		}
		if len(t.window) > 0 {
			if newest := t.window[len(t.window)-1].CreatedAt; newest.After(lastRead) {
				lastRead = newest
			}
		}
	}
	n.mu.Unlock()

	if userID == "" {
		return apperr.Permission(op, "Not signed in")
	}

	stored, err := n.cursors.UpsertMonotonic(ctx, userID, groupID, lastRead)
	if err != nil {
		return apperr.Transport(op, err)
	}

	// The store may round the cursor down; keep the finer local value.
	if lastRead.After(stored) {
		stored = lastRead
	}

	n.mu.Lock()
	t, ok := n.groups[groupID]
	if ok {
		if stored.After(t.lastRead) {
			t.lastRead = stored
		}
		t.count = UnreadCount(t.window, t.lastRead, n.userID)
	}
	n.mu.Unlock()

	if !ok {
		if err := n.track(ctx, groupID, stored); err != nil {
			return err
		}
	}
	n.publish()
	return nil
}

// Untrack stops counting groupID; it disappears from the published counts.
func (n *Notifier) Untrack(groupID string) {
	n.mu.Lock()
	t := n.groups[groupID]
	n.mu.Unlock()
	if t != nil {
		n.drop(groupID, t)
	}
}

// drop removes groupID if it is still tracked by t.
func (n *Notifier) drop(groupID string, t *tracked) {
	n.mu.Lock()
	if n.groups[groupID] != t {
		n.mu.Unlock()
		return
	}
	delete(n.groups, groupID)
	h := t.handle
	n.mu.Unlock()

	if h != nil {
		h.Close()
	}
	n.publish()
}

// Counts returns the current unread state.
func (n *Notifier) Counts() Counts {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.countsLocked()
}

func (n *Notifier) countsLocked() Counts {
	c := Counts{PerGroup: make(map[string]int, len(n.groups))}
	for id, t := range n.groups {
		c.PerGroup[id] = t.count
		c.Total += t.count
	}
	return c
}

// OnChange registers fn and calls it right away with the current counts.
// fn must not call back into the notifier. The returned func unregisters it.
func (n *Notifier) OnChange(fn func(Counts)) func() {
	n.publishMu.Lock()
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	current := n.countsLocked()
	n.mu.Unlock()
	fn(current)
	n.publishMu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// publish notifies listeners when the counts differ from the last publish.
func (n *Notifier) publish() {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	current := n.countsLocked()
	if sameCounts(current, n.last) {
		n.mu.Unlock()
		return
	}
	n.last = current
	listeners := make([]func(Counts), 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	metrics.UnreadRecomputes.Inc()
	for _, fn := range listeners {
		fn(copyCounts(current))
	}
}

func sameCounts(a, b Counts) bool {
	if a.Total != b.Total || len(a.PerGroup) != len(b.PerGroup) {
		return false
	}
	for id, v := range a.PerGroup {
		if w, ok := b.PerGroup[id]; !ok || w != v {
			return false
		}
	}
	return true
}

func copyCounts(c Counts) Counts {
	out := Counts{PerGroup: make(map[string]int, len(c.PerGroup)), Total: c.Total}
	for id, v := range c.PerGroup {
		out.PerGroup[id] = v
	}
	return out
}
