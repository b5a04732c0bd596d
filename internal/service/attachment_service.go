package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/directory"
	"github.com/noteduco342/unichat-backend/internal/metrics"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/noteduco342/unichat-backend/internal/storage"
)

var ErrStorageNotConfigured = errors.New("storage not configured")

const sniffLen = 3072

type UploadInput struct {
	GroupID  string
	FileName string
	Size     int64
	// Category is what the client picked; empty means infer from the extension.
	Category models.MimeCategory
	Body     io.Reader
}

type AttachmentService struct {
	store     storage.ObjectStore
	policy    storage.Policy
	catalogue *directory.Catalogue
	urlTTL    time.Duration
	thumbs    storage.ThumbnailOptions
	now       func() time.Time
}

func NewAttachmentService(store storage.ObjectStore, policy storage.Policy, catalogue *directory.Catalogue, urlTTL time.Duration) *AttachmentService {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &AttachmentService{
		store:     store,
		policy:    policy,
		catalogue: catalogue,
		urlTTL:    urlTTL,
		thumbs:    storage.DefaultThumbnailOptions(),
		now:       time.Now,
	}
}

// Available reports whether an object store is configured.
func (s *AttachmentService) Available() bool {
	return s != nil && s.store != nil
}

// UploadAttachment stores a file for a group and returns its reference.
// Rejected files fail before anything is sent to the object store.
// onProgress receives non-decreasing percentages ending at 100.
func (s *AttachmentService) UploadAttachment(ctx context.Context, in UploadInput, onProgress func(percent int)) (*models.FileRef, error) {
	const op = "service.UploadAttachment"

	category, err := s.policy.Check(in.FileName, in.Size, in.Category)
	if err != nil {
		metrics.UploadsRejected.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}
	if !s.Available() {
		return nil, apperr.Transport(op, ErrStorageNotConfigured)
	}
	if _, ok := s.catalogue.Lookup(in.GroupID); !ok {
		return nil, apperr.NotFound(op, "Group not found")
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperr.Transport(op, err)
	}
	header = header[:n]
	contentType := storage.SniffContentType(header)
	body := io.MultiReader(bytes.NewReader(header), in.Body)

	ref := &models.FileRef{
		Name:        strings.TrimSpace(in.FileName),
		Size:        in.Size,
		ContentType: contentType,
		Category:    category,
	}

	var data []byte
	if category == models.CategoryImage {
		if !strings.HasPrefix(contentType, "image/") {
			metrics.UploadsRejected.WithLabelValues(string(apperr.KindUnsupportedType)).Inc()
			return nil, apperr.UnsupportedType(op, "The file is not a valid image")
		}
		data, err = io.ReadAll(io.LimitReader(body, in.Size+1))
		if err != nil {
			return nil, apperr.Transport(op, err)
		}
		if int64(len(data)) > in.Size {
			return nil, apperr.PayloadTooLarge(op, "File is larger than declared")
		}
		if w, h, err := storage.ImageDimensions(data); err == nil {
			ref.Width, ref.Height = w, h
		}
		body = bytes.NewReader(data)
	}

	ref.Key = storage.ObjectKey(category, in.GroupID, storage.Extension(in.FileName))

	progress := storage.NewProgress(in.Size, onProgress)
	if _, err := s.store.PutObject(ctx, ref.Key, body, in.Size, contentType, progress); err != nil {
		return nil, apperr.Transport(op, err)
	}
	progress.Done()
	metrics.UploadBytes.Observe(float64(in.Size))

	if data != nil {
		s.storeThumbnail(ctx, ref, data)
	}

	url, expires, err := s.presign(ctx, ref.Key)
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	ref.URL = url
	ref.URLExpiresAt = &expires
	return ref, nil
}

// storeThumbnail is best-effort; the original stays usable without it.
func (s *AttachmentService) storeThumbnail(ctx context.Context, ref *models.FileRef, data []byte) {
	thumb, err := storage.MakeThumbnail(data, s.thumbs)
	if err != nil {
		slog.Debug("thumbnail skipped", "key", ref.Key, "error", err)
		return
	}
	key := storage.ThumbnailKey(ref.Key)
	if _, err := s.store.PutObject(ctx, key, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg", nil); err != nil {
		slog.Warn("thumbnail upload failed", "key", key, "error", err)
		return
	}
	ref.ThumbnailKey = key
}

// ResolveAttachment rebuilds a client-supplied reference from the object
// store. Only the key and the display name are taken from ref; size, type and
// category come from the stored object and the URL is issued fresh.
func (s *AttachmentService) ResolveAttachment(ctx context.Context, groupID string, ref models.FileRef) (*models.FileRef, error) {
	const op = "service.ResolveAttachment"

	key := strings.TrimSpace(ref.Key)
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	category, keyGroup, ok := storage.CategoryForKey(key)
	if !ok {
		return nil, apperr.Validation(op, "Invalid attachment key")
	}
	if keyGroup != groupID {
		return nil, apperr.Validation(op, "Attachment belongs to another group")
	}
	if _, err := s.policy.Check(key, 0, category); err != nil {
		return nil, err
	}
	if !s.Available() {
		return nil, apperr.Transport(op, ErrStorageNotConfigured)
	}

	stat, err := s.store.StatObject(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, apperr.NotFound(op, "Attachment not found")
	}
	if err != nil {
		return nil, apperr.Transport(op, err)
	}

	name := path.Base(strings.TrimSpace(ref.Name))
	if name == "." || name == "/" || storage.Extension(name) != storage.Extension(key) {
		name = path.Base(key)
	}
	resolved := &models.FileRef{
		Name:        name,
		Size:        stat.Size,
		ContentType: stat.ContentType,
		Category:    category,
		Key:         key,
	}
	if category == models.CategoryImage {
		if ref.Width > 0 && ref.Height > 0 {
			resolved.Width, resolved.Height = ref.Width, ref.Height
		}
		if ref.ThumbnailKey == storage.ThumbnailKey(key) {
			resolved.ThumbnailKey = ref.ThumbnailKey
		}
	}

	url, expires, err := s.presign(ctx, key)
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	resolved.URL = url
	resolved.URLExpiresAt = &expires
	return resolved, nil
}

// RefreshAccessURL issues a fresh time-limited URL for a stored attachment.
func (s *AttachmentService) RefreshAccessURL(ctx context.Context, key string) (string, time.Time, error) {
	const op = "service.RefreshAccessURL"

	if err := storage.ValidateKey(key); err != nil {
		return "", time.Time{}, err
	}
	if !s.Available() {
		return "", time.Time{}, apperr.Transport(op, ErrStorageNotConfigured)
	}
	url, expires, err := s.presign(ctx, key)
	if err != nil {
		return "", time.Time{}, apperr.Transport(op, err)
	}
	return url, expires, nil
}

func (s *AttachmentService) presign(ctx context.Context, key string) (string, time.Time, error) {
	expires := s.now().UTC().Add(s.urlTTL)
	url, err := s.store.PresignGet(ctx, key, s.urlTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, expires, nil
}
