package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/service"
)

const sendQueueSize = 32

var ErrDisposed = errors.New("feed disposed")

type OutboxStatus string

const (
	OutboxQueued    OutboxStatus = "queued"
	OutboxUploading OutboxStatus = "uploading"
	OutboxSending   OutboxStatus = "sending"
)

// OutboxEntry is a send that the store has not confirmed yet. Entries are
// shown beside the message list and never merged into it; the confirmed
// message arrives through the live window.
type OutboxEntry struct {
	ID        string       `json:"id"`
	GroupID   string       `json:"groupId"`
	Text      string       `json:"text,omitempty"`
	FileName  string       `json:"fileName,omitempty"`
	ReplyToID string       `json:"replyToId,omitempty"`
	Status    OutboxStatus `json:"status"`
	Progress  int          `json:"progress"`
	CreatedAt time.Time    `json:"createdAt"`
}

// PendingSend tracks one queued send.
type PendingSend struct {
	ID   string
	done chan struct{}
	msg  *models.Message
	err  error
}

// Done is closed once the send finished or failed.
func (p *PendingSend) Done() <-chan struct{} { return p.done }

// Result returns the confirmed message. Only valid after Done is closed.
func (p *PendingSend) Result() (*models.Message, error) { return p.msg, p.err }

// Wait blocks until the send finished or ctx ends.
func (p *PendingSend) Wait(ctx context.Context) (*models.Message, error) {
	select {
	case <-p.done:
		return p.msg, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type sendJob struct {
	ctx     context.Context
	groupID string
	text    string
	file    *Attachment
	replyTo string
	pending *PendingSend
}

// sender runs sends one at a time in the order they were queued, so an
// upload never lets a later text message overtake it.
type sender struct {
	c     *Controller
	queue chan *sendJob
	quit  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	outbox   []OutboxEntry
	stopped  bool
	stopOnce sync.Once
}

func newSender(c *Controller) *sender {
	s := &sender{
		c:     c,
		queue: make(chan *sendJob, sendQueueSize),
		quit:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Send queues a message for the open group. Text and file both empty is
// rejected here without touching the store. Attachments are uploaded before
// the message is written, so a stored message only ever carries a resolved file.
func (c *Controller) Send(ctx context.Context, text string, file *Attachment, replyToID string) (*PendingSend, error) {
	const op = "feed.Send"

	text = strings.TrimSpace(text)
	if text == "" && file == nil {
		return nil, apperr.Validation(op, "Message cannot be empty")
	}
	if file != nil && file.Ref == nil && c.uploader == nil {
		return nil, apperr.Transport(op, service.ErrStorageNotConfigured)
	}

	c.mu.Lock()
	groupID := c.groupID
	c.mu.Unlock()
	if groupID == "" {
		return nil, apperr.Validation(op, "Open a group first")
	}

	job := &sendJob{
		ctx:     ctx,
		groupID: groupID,
		text:    text,
		file:    file,
		replyTo: strings.TrimSpace(replyToID),
		pending: &PendingSend{ID: models.NewProvisionalID(), done: make(chan struct{})},
	}
	if err := c.sender.enqueue(job); err != nil {
		return nil, err
	}
	c.emit()
	return job.pending, nil
}

func (s *sender) enqueue(job *sendJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return apperr.Transport("feed.Send", ErrDisposed)
	}

	entry := OutboxEntry{
		ID:        job.pending.ID,
		GroupID:   job.groupID,
		Text:      job.text,
		ReplyToID: job.replyTo,
		Status:    OutboxQueued,
		CreatedAt: time.Now().UTC(),
	}
	if job.file != nil {
		entry.FileName = job.file.FileName
		if entry.FileName == "" && job.file.Ref != nil {
			entry.FileName = job.file.Ref.Name
		}
	}

	select {
	case s.queue <- job:
	default:
		return apperr.Transport("feed.Send", errors.New("too many messages waiting to send"))
	}
	s.outbox = append(s.outbox, entry)
	return nil
}

func (s *sender) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			s.drain()
			return
		case job := <-s.queue:
			s.run(job)
		}
	}
}

// drain fails whatever was still queued when the controller was disposed.
func (s *sender) drain() {
	for {
		select {
		case job := <-s.queue:
			s.finish(job, nil, apperr.Transport("feed.Send", ErrDisposed))
		default:
			return
		}
	}
}

func (s *sender) run(job *sendJob) {
	var ref *models.FileRef
	if job.file != nil && job.file.Ref != nil {
		ref = job.file.Ref
	} else if job.file != nil {
		s.update(job.pending.ID, OutboxUploading, 0)
		uploaded, err := s.c.uploader.UploadAttachment(job.ctx, service.UploadInput{
			GroupID:  job.groupID,
			FileName: job.file.FileName,
			Size:     job.file.Size,
			Category: job.file.Category,
			Body:     job.file.Body,
		}, func(percent int) {
			s.update(job.pending.ID, OutboxUploading, percent)
		})
		if err != nil {
			s.finish(job, nil, err)
			return
		}
		ref = uploaded
	}

	s.update(job.pending.ID, OutboxSending, 100)
	msg, err := s.c.store.SendMessage(job.ctx, s.c.identity, job.groupID, service.SendMessageInput{
		Text:      job.text,
		File:      ref,
		ReplyToID: job.replyTo,
	})
	s.finish(job, msg, err)
}

func (s *sender) update(id string, status OutboxStatus, progress int) {
	s.mu.Lock()
	changed := false
	for i := range s.outbox {
		e := &s.outbox[i]
		if e.ID != id {
			continue
		}
		if progress < e.Progress {
			progress = e.Progress
		}
		changed = e.Status != status || e.Progress != progress
		e.Status = status
		e.Progress = progress
		break
	}
	s.mu.Unlock()
	if changed {
		s.c.emit()
	}
}

func (s *sender) finish(job *sendJob, msg *models.Message, err error) {
	s.mu.Lock()
	for i := range s.outbox {
		if s.outbox[i].ID == job.pending.ID {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	job.pending.msg, job.pending.err = msg, err
	close(job.pending.done)
	s.c.emit()
}

// stop fails queued sends and waits for the running one to return.
func (s *sender) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.quit)
		s.wg.Wait()
	})
}

func (s *sender) hasPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.ID == id {
			return true
		}
	}
	return false
}

// entries returns the outbox of groupID in send order.
func (s *sender) entries(groupID string) []OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OutboxEntry, 0, len(s.outbox))
	for _, e := range s.outbox {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	return out
}
