package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/models"
)

const DefaultMaxUploadBytes int64 = 50 * 1024 * 1024

var allowedExtensions = map[string]models.MimeCategory{
	"jpg":  models.CategoryImage,
	"jpeg": models.CategoryImage,
	"png":  models.CategoryImage,
	"webp": models.CategoryImage,
	"gif":  models.CategoryImage,

	"pdf":  models.CategoryDocument,
	"docx": models.CategoryDocument,
	"pptx": models.CategoryDocument,
	"xlsx": models.CategoryDocument,
	"txt":  models.CategoryDocument,

	"zip": models.CategoryCompressed,
	"rar": models.CategoryCompressed,

	"mp3": models.CategoryAudio,
	"m4a": models.CategoryAudio,
	"ogg": models.CategoryAudio,
	"wav": models.CategoryAudio,

	"mp4":  models.CategoryVideo,
	"webm": models.CategoryVideo,
	"mov":  models.CategoryVideo,
}

var keyPrefixes = map[models.MimeCategory]string{
	models.CategoryImage:      "images/",
	models.CategoryDocument:   "documents/",
	models.CategoryVideo:      "videos/",
	models.CategoryAudio:      "audio/",
	models.CategoryCompressed: "archives/",
	models.CategoryOther:      "misc/",
}

// Policy decides which attachments may be uploaded.
type Policy struct {
	MaxBytes int64
}

func DefaultPolicy() Policy {
	return Policy{MaxBytes: DefaultMaxUploadBytes}
}

// Extension returns the lowercase extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// Check validates an attachment before any byte is sent. A non-empty declared
// category must agree with the category implied by the extension.
func (p Policy) Check(name string, size int64, declared models.MimeCategory) (models.MimeCategory, error) {
	const op = "storage.Check"

	limit := p.MaxBytes
	if limit <= 0 || limit > DefaultMaxUploadBytes {
		limit = DefaultMaxUploadBytes
	}
	if size > limit {
		return "", apperr.PayloadTooLarge(op, fmt.Sprintf("File exceeds the %d MB limit", limit/(1024*1024)))
	}

	ext := Extension(name)
	category, ok := allowedExtensions[ext]
	if !ok {
		return "", apperr.UnsupportedType(op, fmt.Sprintf("Files of type .%s are not allowed", ext))
	}
	if declared != "" && declared != category {
		return "", apperr.UnsupportedType(op, fmt.Sprintf("A .%s file is not a valid %s attachment", ext, declared))
	}
	return category, nil
}

// ObjectKey places an attachment under its category prefix and group.
func ObjectKey(category models.MimeCategory, groupID, ext string) string {
	prefix, ok := keyPrefixes[category]
	if !ok {
		prefix = keyPrefixes[models.CategoryOther]
	}
	key := prefix + groupID + "/" + uuid.NewString()
	if ext != "" {
		key += "." + ext
	}
	return key
}

// CategoryForKey returns the category encoded in key's prefix and the group
// segment that follows it.
func CategoryForKey(key string) (models.MimeCategory, string, bool) {
	for category, prefix := range keyPrefixes {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		groupID, file, ok := strings.Cut(rest, "/")
		if !ok || groupID == "" || file == "" || strings.Contains(file, "/") {
			return "", "", false
		}
		return category, groupID, true
	}
	return "", "", false
}

// ThumbnailKey derives the key of an image's preview from the original key.
func ThumbnailKey(key string) string {
	return "thumbnails/" + strings.TrimSuffix(key, path.Ext(key)) + ".jpg"
}

// ValidateKey accepts only keys this package could have produced.
func ValidateKey(key string) error {
	const op = "storage.ValidateKey"

	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, "\\") || strings.HasPrefix(key, "/") {
		return apperr.Validation(op, "Invalid attachment key")
	}
	if strings.HasPrefix(key, "thumbnails/") {
		key = strings.TrimPrefix(key, "thumbnails/")
	}
	for _, prefix := range keyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return apperr.Validation(op, "Invalid attachment key")
}
