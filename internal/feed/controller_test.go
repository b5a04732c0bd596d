package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/realtime"
	"github.com/noteduco342/unichat-backend/internal/service"
	"github.com/noteduco342/unichat-backend/internal/testutil"
)

const testGroup = "computer-science"

type fakeHandle struct {
	mu     sync.Mutex
	closed bool
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeStore delivers windows only when the test calls deliver.
type fakeStore struct {
	mu        sync.Mutex
	history   []models.Message
	handles   []*fakeHandle
	onWindow  func(service.Window)
	onError   func(error)
	fetches   []models.Cursor
	sends     []service.SendMessageInput
	deletes   []string
	openErr   error
	deleteErr error
}

func (s *fakeStore) OpenLiveWindow(ctx context.Context, groupID string, pageSize int, onWindow func(service.Window), onError func(error)) (service.WindowHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	h := &fakeHandle{}
	s.handles = append(s.handles, h)
	s.onWindow, s.onError = onWindow, onError
	return h, nil
}

func (s *fakeStore) FetchOlderPage(ctx context.Context, groupID string, before models.Cursor, pageSize int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, before)
	var older []models.Message
	for _, m := range s.history {
		if m.OlderThan(before) {
			older = append(older, m)
		}
	}
	if len(older) > pageSize {
		older = older[len(older)-pageSize:]
	}
	return older, nil
}

func (s *fakeStore) SendMessage(ctx context.Context, author models.Identity, groupID string, input service.SendMessageInput) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, input)
	return &models.Message{
		ID:        fmt.Sprintf("sent-%d", len(s.sends)),
		GroupID:   groupID,
		AuthorID:  author.UserID,
		Text:      input.Text,
		File:      input.File,
		ReplyToID: input.ReplyToID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *fakeStore) DeleteMessage(ctx context.Context, userID, groupID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, messageID)
	return s.deleteErr
}

func (s *fakeStore) deliver(w service.Window) {
	s.mu.Lock()
	fn := s.onWindow
	s.mu.Unlock()
	fn(w)
}

func (s *fakeStore) fail(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	fn(err)
}

func (s *fakeStore) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

// blockingUploader holds every upload until release is closed.
type blockingUploader struct {
	started chan string
	release chan struct{}
}

func (u *blockingUploader) UploadAttachment(ctx context.Context, in service.UploadInput, onProgress func(int)) (*models.FileRef, error) {
	onProgress(0)
	u.started <- in.FileName
	<-u.release
	onProgress(50)
	onProgress(100)
	return &models.FileRef{Name: in.FileName, Key: "documents/" + in.GroupID + "/f.pdf", Category: models.CategoryDocument}, nil
}

var (
	alice = models.Identity{UserID: "alice", DisplayName: "Alice", Major: "Computer Science"}
)

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	c := NewController(store, alice, opts...)
	t.Cleanup(c.Dispose)
	return c, store
}

func openReady(t *testing.T, c *Controller, store *fakeStore, window []models.Message) {
	t.Helper()
	if err := c.OpenGroup(context.Background(), testGroup); err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	if got := c.Snapshot().State; got != StateLoading {
		t.Fatalf("state after open = %s, want loading", got)
	}
	store.deliver(service.Window{GroupID: testGroup, Messages: window})
	if got := c.Snapshot().State; got != StateReady {
		t.Fatalf("state after first window = %s, want ready", got)
	}
}

func snapshotIDs(s Snapshot) []string {
	out := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = m.ID
	}
	return out
}

func TestLoadOlderHistoryPagesUntilExhausted(t *testing.T) {
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t)
	all := h.Messages(testGroup, "bob", 53)
	store.history = all

	openReady(t, c, store, all[28:])

	wantSizes := []int{50, 53, 53}
	for i, want := range wantSizes {
		if err := c.LoadOlderHistory(context.Background()); err != nil {
			t.Fatalf("LoadOlderHistory #%d: %v", i+1, err)
		}
		snap := c.Snapshot()
		if len(snap.Messages) != want {
			t.Fatalf("after load #%d held %d, want %d", i+1, len(snap.Messages), want)
		}
	}

	if c.Snapshot().HasMore {
		t.Errorf("HasMore still set after an empty page")
	}
	if err := c.LoadOlderHistory(context.Background()); err != nil {
		t.Fatalf("LoadOlderHistory after exhaustion: %v", err)
	}
	if len(store.fetches) != 3 {
		t.Fatalf("fetches = %d, want 3", len(store.fetches))
	}
	if store.fetches[0] != all[28].Cursor() || store.fetches[1] != all[3].Cursor() {
		t.Errorf("cursors = %v, want oldest held message each time", store.fetches)
	}

	snap := c.Snapshot()
	got := snapshotIDs(snap)
	for i, id := range got {
		if id != all[i].ID {
			t.Fatalf("position %d = %s, want %s", i, id, all[i].ID)
		}
	}
}

func TestLoadOlderHistoryIgnoredBeforeFirstWindow(t *testing.T) {
	c, store := newTestController(t)
	if err := c.OpenGroup(context.Background(), testGroup); err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	if err := c.LoadOlderHistory(context.Background()); err != nil {
		t.Fatalf("LoadOlderHistory: %v", err)
	}
	if len(store.fetches) != 0 {
		t.Errorf("fetched before the window arrived")
	}
}

func TestWindowMergeKeepsOlderPages(t *testing.T) {
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t)
	all := h.Messages(testGroup, "bob", 10)
	store.history = all

	openReady(t, c, store, all[5:])
	if err := c.LoadOlderHistory(context.Background()); err != nil {
		t.Fatalf("LoadOlderHistory: %v", err)
	}

	// m002 removed from the older page; m008 removed from the window and m005 backfilled.
	window := append([]models.Message{all[4]}, all[5:7]...)
	window = append(window, all[8:]...)
	store.deliver(service.Window{
		GroupID:  testGroup,
		Messages: window,
		Changes: []service.Change{
			{Kind: realtime.ChangeRemoved, Message: all[1]},
			{Kind: realtime.ChangeRemoved, Message: all[7]},
		},
	})

	got := snapshotIDs(c.Snapshot())
	want := []string{"m001", "m003", "m004", "m005", "m006", "m007", "m009", "m010"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("held = %v, want %v", got, want)
	}
}

func TestWindowDropsMissingMessagesInRange(t *testing.T) {
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t)
	all := h.Messages(testGroup, "bob", 5)

	openReady(t, c, store, all)
	store.deliver(service.Window{GroupID: testGroup, Messages: []models.Message{all[0], all[1], all[3], all[4]}})

	got := snapshotIDs(c.Snapshot())
	if fmt.Sprint(got) != fmt.Sprint([]string{"m001", "m002", "m004", "m005"}) {
		t.Errorf("held = %v", got)
	}

	store.deliver(service.Window{GroupID: testGroup})
	if n := len(c.Snapshot().Messages); n != 0 {
		t.Errorf("empty window left %d messages", n)
	}
}

func TestRenderedListStaysOrdered(t *testing.T) {
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t)

	a := h.Message("b", testGroup, "bob", 0)
	b := h.Message("a", testGroup, "bob", 0)
	d := h.Message("c", testGroup, "bob", time.Minute)
	openReady(t, c, store, []models.Message{d, a, b})

	var msgs []models.Message
	for _, r := range c.Snapshot().Messages {
		msgs = append(msgs, r.Message)
	}
	h.AssertAscending(msgs, "rendered list")
}

func TestSendRejectsEmptyLocally(t *testing.T) {
	c, store := newTestController(t)
	openReady(t, c, store, nil)

	for _, text := range []string{"", "   ", "\n"} {
		_, err := c.Send(context.Background(), text, nil, "")
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Send(%q) err = %v, want validation", text, err)
		}
	}
	if store.sendCount() != 0 {
		t.Errorf("store called %d times for empty sends", store.sendCount())
	}
}

func TestSendRequiresOpenGroup(t *testing.T) {
	c, store := newTestController(t)
	if _, err := c.Send(context.Background(), "hello", nil, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
	if store.sendCount() != 0 {
		t.Errorf("store called without an open group")
	}
}

func TestSendKeepsInitiationOrder(t *testing.T) {
	uploader := &blockingUploader{started: make(chan string, 1), release: make(chan struct{})}
	c, store := newTestController(t, WithUploader(uploader))
	openReady(t, c, store, nil)
	ctx := context.Background()

	first, err := c.Send(ctx, "", &Attachment{FileName: "notes.pdf", Size: 10}, "")
	if err != nil {
		t.Fatalf("Send with file: %v", err)
	}
	second, err := c.Send(ctx, "after the file", nil, "")
	if err != nil {
		t.Fatalf("Send text: %v", err)
	}

	<-uploader.started
	snap := c.Snapshot()
	if len(snap.Outbox) != 2 {
		t.Fatalf("outbox = %d entries, want 2", len(snap.Outbox))
	}
	if snap.Outbox[0].Status != OutboxUploading || snap.Outbox[1].Status != OutboxQueued {
		t.Errorf("outbox statuses = %s, %s", snap.Outbox[0].Status, snap.Outbox[1].Status)
	}
	if store.sendCount() != 0 {
		t.Fatalf("text overtook the upload")
	}
	close(uploader.release)

	if _, err := first.Wait(ctx); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := second.Wait(ctx); err != nil {
		t.Fatalf("second send: %v", err)
	}

	if len(store.sends) != 2 {
		t.Fatalf("sends = %d", len(store.sends))
	}
	if store.sends[0].File == nil || store.sends[0].File.Key == "" {
		t.Errorf("first send lacks the uploaded file reference")
	}
	if store.sends[1].Text != "after the file" {
		t.Errorf("second send = %+v", store.sends[1])
	}
	if n := len(c.Snapshot().Outbox); n != 0 {
		t.Errorf("outbox still has %d entries", n)
	}
	// Confirmed messages arrive only through the live window.
	if n := len(c.Snapshot().Messages); n != 0 {
		t.Errorf("send inserted %d messages locally", n)
	}
}

func TestSendWithFileNeedsUploader(t *testing.T) {
	c, store := newTestController(t)
	openReady(t, c, store, nil)
	_, err := c.Send(context.Background(), "", &Attachment{FileName: "a.pdf"}, "")
	if !errors.Is(err, apperr.ErrTransport) {
		t.Errorf("err = %v, want transport", err)
	}
}

func TestRequestDelete(t *testing.T) {
	h := testutil.NewTestHelper(t)
	mine := h.Message("m1", testGroup, "alice", 0)
	theirs := h.Message("m2", testGroup, "bob", time.Minute)

	tests := []struct {
		name        string
		messageID   string
		accept      bool
		wantKind    error
		wantAsked   bool
		wantDeleted bool
	}{
		{"author accepts", "m1", true, nil, true, true},
		{"author declines", "m1", false, nil, true, false},
		{"not the author", "m2", true, apperr.ErrPermission, false, false},
		{"pending message", models.ProvisionalIDPrefix + "x", true, apperr.ErrPermission, false, false},
		{"not loaded", "missing", true, apperr.ErrNotFound, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newTestController(t)
			openReady(t, c, store, []models.Message{mine, theirs})

			asked := false
			confirm := ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
				asked = true
				return tt.accept, nil
			})
			err := c.RequestDelete(context.Background(), tt.messageID, confirm)

			if tt.wantKind == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantKind != nil && !errors.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want %v", err, tt.wantKind)
			}
			if asked != tt.wantAsked {
				t.Errorf("asked = %v, want %v", asked, tt.wantAsked)
			}
			if deleted := len(store.deletes) == 1; deleted != tt.wantDeleted {
				t.Errorf("deleted = %v, want %v", deleted, tt.wantDeleted)
			}
			// The message leaves the list only when the live window says so.
			if n := len(c.Snapshot().Messages); n != 2 {
				t.Errorf("held %d messages after delete request, want 2", n)
			}
		})
	}
}

func TestReplyPreviewDegradesWhenTargetRemoved(t *testing.T) {
	h := testutil.NewTestHelper(t)
	target := h.Message("m1", testGroup, "bob", 0)
	reply := h.Message("m2", testGroup, "alice", time.Minute)
	reply.ReplyToID = target.ID

	c, store := newTestController(t)
	openReady(t, c, store, []models.Message{target, reply})

	snap := c.Snapshot()
	if snap.Messages[1].Reply == nil || snap.Messages[1].Reply.AuthorID != "bob" {
		t.Fatalf("reply preview = %+v", snap.Messages[1].Reply)
	}

	store.deliver(service.Window{
		GroupID:  testGroup,
		Messages: []models.Message{reply},
		Changes:  []service.Change{{Kind: realtime.ChangeRemoved, Message: target}},
	})

	snap = c.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m2" {
		t.Fatalf("held = %v", snapshotIDs(snap))
	}
	if snap.Messages[0].Reply != nil {
		t.Errorf("preview of a deleted message = %+v", snap.Messages[0].Reply)
	}
}

func TestTransportErrorKeepsLoadedMessages(t *testing.T) {
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t)
	openReady(t, c, store, h.Messages(testGroup, "bob", 3))

	store.fail(apperr.Transport("test", errors.New("connection reset")))

	snap := c.Snapshot()
	if snap.State != StateError {
		t.Fatalf("state = %s, want error", snap.State)
	}
	if snap.Banner == "" {
		t.Errorf("no banner for a failed subscription")
	}
	if len(snap.Messages) != 3 {
		t.Errorf("held %d messages after failure, want 3", len(snap.Messages))
	}
}

func TestOpenGroupFailureShowsError(t *testing.T) {
	c, store := newTestController(t)
	store.openErr = apperr.NotFound("test", "Group not found")

	err := c.OpenGroup(context.Background(), "nowhere")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if snap := c.Snapshot(); snap.State != StateError || snap.Banner != "Group not found" {
		t.Errorf("snapshot = %s %q", snap.State, snap.Banner)
	}
}

func TestGroupSwitchDetachesPreviousWindow(t *testing.T) {
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t)
	openReady(t, c, store, h.Messages(testGroup, "bob", 2))
	stale := store.onWindow

	if err := c.OpenGroup(context.Background(), "law"); err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	if !store.handles[0].isClosed() {
		t.Fatalf("previous window still attached")
	}
	if store.handles[1].isClosed() {
		t.Fatalf("new window closed")
	}

	stale(service.Window{GroupID: testGroup, Messages: h.Messages(testGroup, "bob", 4)})
	snap := c.Snapshot()
	if snap.GroupID != "law" || snap.State != StateLoading || len(snap.Messages) != 0 {
		t.Errorf("stale delivery leaked into new group: %+v", snap)
	}

	c.CloseGroup()
	if !store.handles[1].isClosed() {
		t.Errorf("CloseGroup left the window attached")
	}
	if c.Snapshot().State != StateClosed {
		t.Errorf("state after close = %s", c.Snapshot().State)
	}
}

func TestNewSinceScrollCountsOthersArrivals(t *testing.T) {
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t)
	base := h.Messages(testGroup, "bob", 2)
	openReady(t, c, store, base)

	c.Scrolled(false)
	fromBob := h.Message("m3", testGroup, "bob", 10*time.Minute)
	fromMe := h.Message("m4", testGroup, "alice", 11*time.Minute)
	store.deliver(service.Window{
		GroupID:  testGroup,
		Messages: append(append([]models.Message{}, base...), fromBob),
		Changes:  []service.Change{{Kind: realtime.ChangeAdded, Message: fromBob}},
	})
	store.deliver(service.Window{
		GroupID:  testGroup,
		Messages: append(append([]models.Message{}, base...), fromBob, fromMe),
		Changes:  []service.Change{{Kind: realtime.ChangeAdded, Message: fromMe}},
	})

	if got := c.Snapshot().NewSinceScroll; got != 1 {
		t.Fatalf("NewSinceScroll = %d, want 1", got)
	}
	c.Scrolled(true)
	if got := c.Snapshot().NewSinceScroll; got != 0 {
		t.Errorf("NewSinceScroll after reaching bottom = %d", got)
	}
}

func TestListenerSeesIncreasingVersions(t *testing.T) {
	var mu sync.Mutex
	var versions []uint64
	listener := func(s Snapshot) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	}
	h := testutil.NewTestHelper(t)
	c, store := newTestController(t, WithListener(listener), WithWritePermission(func(string) bool { return true }))
	openReady(t, c, store, h.Messages(testGroup, "bob", 1))

	if !c.Snapshot().CanWrite {
		t.Errorf("CanWrite hint not set")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(versions) < 2 {
		t.Fatalf("listener saw %d snapshots", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("versions not increasing: %v", versions)
		}
	}
}

func TestSendWithUploadedFileSkipsUploader(t *testing.T) {
	c, store := newTestController(t)
	openReady(t, c, store, nil)

	ref := &models.FileRef{Name: "map.png", Key: "images/" + testGroup + "/x.png", Category: models.CategoryImage}
	p, err := c.Send(context.Background(), "", &Attachment{Ref: ref}, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(store.sends) != 1 || store.sends[0].File != ref {
		t.Errorf("sends = %+v", store.sends)
	}
}
