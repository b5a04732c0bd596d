// Package feed owns the message list of the group a session has open.
package feed

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/realtime"
	"github.com/noteduco342/unichat-backend/internal/service"
)

type State string

const (
	StateClosed  State = "closed"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

const DefaultPageSize = 25

// Store is the message collection the controller reads and writes.
type Store interface {
	OpenLiveWindow(ctx context.Context, groupID string, pageSize int, onWindow func(service.Window), onError func(error)) (service.WindowHandle, error)
	FetchOlderPage(ctx context.Context, groupID string, before models.Cursor, pageSize int) ([]models.Message, error)
	SendMessage(ctx context.Context, author models.Identity, groupID string, input service.SendMessageInput) (*models.Message, error)
	DeleteMessage(ctx context.Context, userID, groupID, messageID string) error
}

// Uploader stores attachments before they are referenced by a message.
type Uploader interface {
	UploadAttachment(ctx context.Context, in service.UploadInput, onProgress func(percent int)) (*models.FileRef, error)
}

// Attachment is a file picked for sending. Ref is set when the file was
// already uploaded; otherwise Body is uploaded before the message is sent.
type Attachment struct {
	FileName string
	Size     int64
	Category models.MimeCategory
	Body     io.Reader
	Ref      *models.FileRef
}

// Snapshot is the render-ready state of the open group.
type Snapshot struct {
	Version        uint64            `json:"version"`
	GroupID        string            `json:"groupId"`
	State          State             `json:"state"`
	Banner         string            `json:"banner,omitempty"`
	Messages       []RenderedMessage `json:"messages"`
	Outbox         []OutboxEntry     `json:"outbox"`
	HasMore        bool              `json:"hasMore"`
	LoadingOlder   bool              `json:"loadingOlder"`
	NewSinceScroll int               `json:"newSinceScroll"`
	CanWrite       bool              `json:"canWrite"`
}

// Controller merges the live window of one open group with the older pages
// loaded on demand. Only the controller mutates its message list; listeners
// receive copies.
type Controller struct {
	store    Store
	uploader Uploader
	identity models.Identity
	pageSize int
	canWrite func(groupID string) bool
	listener func(Snapshot)

	// openMu serializes group switches so at most one window is attached.
	openMu sync.Mutex
	// emitMu keeps snapshots in the order they were built.
	emitMu sync.Mutex

	mu             sync.Mutex
	gen            uint64
	version        uint64
	groupID        string
	state          State
	banner         string
	held           map[string]models.Message
	order          []models.Message
	exhausted      bool
	loadingOlder   bool
	handle         service.WindowHandle
	atBottom       bool
	newSinceScroll int

	sender *sender
}

type Option func(*Controller)

func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithUploader(u Uploader) Option {
	return func(c *Controller) { c.uploader = u }
}

// WithListener receives every snapshot. It must not call back into the controller.
func WithListener(fn func(Snapshot)) Option {
	return func(c *Controller) { c.listener = fn }
}

// WithWritePermission decides the CanWrite hint of snapshots.
func WithWritePermission(fn func(groupID string) bool) Option {
	return func(c *Controller) { c.canWrite = fn }
}

func NewController(store Store, identity models.Identity, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		identity: identity,
		pageSize: DefaultPageSize,
		state:    StateClosed,
		held:     make(map[string]models.Message),
		atBottom: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sender = newSender(c)
	return c
}

// OpenGroup detaches the current window, resets pagination and attaches a
// window for groupID. The previous subscription is gone before the new one starts.
func (c *Controller) OpenGroup(ctx context.Context, groupID string) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.mu.Lock()
	old := c.resetLocked(groupID, StateLoading)
	gen := c.gen
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.emit()

	h, err := c.store.OpenLiveWindow(ctx, groupID, c.pageSize, c.onWindow(gen), c.onError(gen))
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateError
			c.banner = apperr.Message(err)
		}
		c.mu.Unlock()
		c.emit()
		return err
	}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()
	return nil
}

// CloseGroup detaches the current window and forgets the loaded messages.
func (c *Controller) CloseGroup() {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.mu.Lock()
	old := c.resetLocked("", StateClosed)
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.emit()
}

// Dispose closes the group and stops the send queue. Sends still queued fail.
func (c *Controller) Dispose() {
	c.CloseGroup()
	c.sender.stop()
}

func (c *Controller) resetLocked(groupID string, state State) service.WindowHandle {
	c.gen++
	old := c.handle
	c.handle = nil
	c.groupID = groupID
	c.state = state
	c.banner = ""
	c.held = make(map[string]models.Message)
	c.order = nil
	c.exhausted = false
	c.loadingOlder = false
	c.atBottom = true
	c.newSinceScroll = 0
	return old
}

func (c *Controller) onWindow(gen uint64) func(service.Window) {
	return func(w service.Window) {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.mergeLocked(w)
		c.state = StateReady
		c.banner = ""
		c.mu.Unlock()
		c.emit()
	}
}

func (c *Controller) onError(gen uint64) func(error) {
	return func(err error) {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		// Loaded messages stay; the banner explains why they stopped updating.
		c.state = StateError
		c.banner = apperr.Message(err)
		c.mu.Unlock()
		c.emit()
	}
}

// mergeLocked applies a window. The window holds every message at or after
// its oldest entry, so held messages in that range that it lacks are gone.
// Messages older than the window were loaded earlier and stay.
func (c *Controller) mergeLocked(w service.Window) {
	for _, ch := range w.Changes {
		if ch.Kind == realtime.ChangeRemoved {
			delete(c.held, ch.Message.ID)
		}
	}

	inWindow := make(map[string]struct{}, len(w.Messages))
	for _, m := range w.Messages {
		inWindow[m.ID] = struct{}{}
	}
	if len(w.Messages) == 0 {
		c.held = make(map[string]models.Message)
	} else {
		oldest := w.Messages[0].Cursor()
		for id, m := range c.held {
			if _, ok := inWindow[id]; ok {
				continue
			}
			if !m.OlderThan(oldest) {
				delete(c.held, id)
			}
		}
	}

	if c.state == StateReady && !c.atBottom {
		for _, ch := range w.Changes {
			if ch.Kind != realtime.ChangeAdded || ch.Message.IsAuthoredBy(c.identity.UserID) {
				continue
			}
			if _, known := c.held[ch.Message.ID]; !known {
				c.newSinceScroll++
			}
		}
	}
	for _, m := range w.Messages {
		c.held[m.ID] = m
	}
	c.rebuildLocked()
}

func (c *Controller) rebuildLocked() {
	order := make([]models.Message, 0, len(c.held))
	for _, m := range c.held {
		order = append(order, m)
	}
	sort.Slice(order, func(i, j int) bool { return models.Before(&order[i], &order[j]) })
	c.order = order
}

// LoadOlderHistory prepends the page before the oldest loaded message. It is
// a no-op while a load is running, before the first window, or once an empty
// page has marked the history exhausted.
func (c *Controller) LoadOlderHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady || c.exhausted || c.loadingOlder || len(c.order) == 0 {
		c.mu.Unlock()
		return nil
	}
	c.loadingOlder = true
	gen := c.gen
	groupID := c.groupID
	cursor := c.order[0].Cursor()
	c.mu.Unlock()
	c.emit()

	page, err := c.store.FetchOlderPage(ctx, groupID, cursor, c.pageSize)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.loadingOlder = false
	if err == nil {
		if len(page) == 0 {
			c.exhausted = true
		}
		for _, m := range page {
			if _, ok := c.held[m.ID]; !ok {
				m.DeliveryState = models.DeliveryConfirmed
				c.held[m.ID] = m
			}
		}
		c.rebuildLocked()
	}
	c.mu.Unlock()
	c.emit()
	return err
}

// Scrolled records whether the viewer is at the bottom of the list.
// Reaching the bottom clears the new-message counter.
func (c *Controller) Scrolled(atBottom bool) {
	c.mu.Lock()
	c.atBottom = atBottom
	if atBottom {
		c.newSinceScroll = 0
	}
	c.mu.Unlock()
	c.emit()
}

// Confirmer asks the user to accept a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

const DeletePrompt = "Are you sure you want to delete this message?"

// RequestDelete deletes one of the viewer's confirmed messages after the
// confirmer accepts. A declined confirmation is not an error. The message
// leaves the list when the live window reports the removal.
func (c *Controller) RequestDelete(ctx context.Context, messageID string, confirm Confirmer) error {
	const op = "feed.RequestDelete"

	c.mu.Lock()
	groupID := c.groupID
	msg, ok := c.held[messageID]
	pending := c.sender.hasPending(messageID)
	c.mu.Unlock()

	switch {
	case pending || strings.HasPrefix(messageID, models.ProvisionalIDPrefix):
		return apperr.Permission(op, "Message is still sending")
	case !ok:
		return apperr.NotFound(op, "Message not found")
	case !msg.IsAuthoredBy(c.identity.UserID):
		return apperr.Permission(op, "You can only delete your own messages")
	case confirm == nil:
		return apperr.Validation(op, "Deleting needs confirmation")
	}

	accepted, err := confirm.Confirm(ctx, DeletePrompt)
	if err != nil {
		return err
	}
	if !accepted {
		return nil
	}
	return c.store.DeleteMessage(ctx, c.identity.UserID, groupID, messageID)
}

// GroupID returns the open group, or "" when none is open.
func (c *Controller) GroupID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groupID
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	lookup := func(id string) (models.Message, bool) {
		m, ok := c.held[id]
		return m, ok
	}
	snap := Snapshot{
		Version:        c.version,
		GroupID:        c.groupID,
		State:          c.state,
		Banner:         c.banner,
		Messages:       Render(c.order, c.identity.UserID, lookup),
		Outbox:         c.sender.entries(c.groupID),
		HasMore:        !c.exhausted,
		LoadingOlder:   c.loadingOlder,
		NewSinceScroll: c.newSinceScroll,
	}
	if c.groupID != "" && c.canWrite != nil {
		snap.CanWrite = c.canWrite(c.groupID)
	}
	return snap
}

func (c *Controller) emit() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.listener != nil {
		c.listener(snap)
	}
}
