package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/models"
)

func TestPolicyCheck(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		file     string
		size     int64
		declared models.MimeCategory
		want     models.MimeCategory
		wantErr  error
	}{
		{"photo", "IMG_001.JPG", 1024, "", models.CategoryImage, nil},
		{"declared matches", "notes.pdf", 1024, models.CategoryDocument, models.CategoryDocument, nil},
		{"archive", "slides.rar", 1024, "", models.CategoryCompressed, nil},
		{"voice note", "memo.m4a", 1024, models.CategoryAudio, models.CategoryAudio, nil},
		{"exactly at limit", "clip.mp4", DefaultMaxUploadBytes, "", models.CategoryVideo, nil},
		{"over limit", "clip.mp4", DefaultMaxUploadBytes + 1, "", "", apperr.ErrPayloadTooLarge},
		{"executable", "setup.exe", 1024, "", "", apperr.ErrUnsupportedType},
		{"no extension", "README", 1024, "", "", apperr.ErrUnsupportedType},
		{"category mismatch", "song.mp3", 1024, models.CategoryImage, "", apperr.ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Check(tt.file, tt.size, tt.declared)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tt.want {
				t.Errorf("category = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicyLimitCannotExceedDefault(t *testing.T) {
	p := Policy{MaxBytes: DefaultMaxUploadBytes * 2}
	if _, err := p.Check("a.zip", DefaultMaxUploadBytes+1, ""); !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want payload too large", err)
	}

	p = Policy{MaxBytes: 10}
	if _, err := p.Check("a.zip", 11, ""); !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("lowered limit not applied: %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey(models.CategoryCompressed, "computer-science", "zip")
	if !strings.HasPrefix(key, "archives/computer-science/") || !strings.HasSuffix(key, ".zip") {
		t.Errorf("ObjectKey = %q", key)
	}
	if err := ValidateKey(key); err != nil {
		t.Errorf("ValidateKey(%q) = %v", key, err)
	}
	if err := ValidateKey(ThumbnailKey(key)); err != nil {
		t.Errorf("ValidateKey(thumbnail) = %v", err)
	}
	if other := ObjectKey("", "g", ""); !strings.HasPrefix(other, "misc/g/") {
		t.Errorf("ObjectKey fallback = %q", other)
	}
}

func TestValidateKeyRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{"", "../images/a.jpg", "images\\a.jpg", "/images/a.jpg", "avatars/1/a.jpg"} {
		if err := ValidateKey(key); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("ValidateKey(%q) = %v, want validation error", key, err)
		}
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	var got []int
	p := NewProgress(100, func(percent int) { got = append(got, percent) })

	p.Read(make([]byte, 30))
	p.Read(make([]byte, 0))
	p.Read(make([]byte, 50))
	// retried part reports the same bytes again
	p.Read(make([]byte, 50))
	p.Done()
	p.Done()

	want := []int{0, 30, 80, 99, 100}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}
}

func TestCategoryForKey(t *testing.T) {
	tests := []struct {
		key    string
		want   models.MimeCategory
		group  string
		wantOK bool
	}{
		{"images/general-chat/abc.png", models.CategoryImage, "general-chat", true},
		{"documents/law/x.pdf", models.CategoryDocument, "law", true},
		{"archives/law/x.zip", models.CategoryCompressed, "law", true},
		{"images/abc.png", "", "", false},
		{"images/law/nested/abc.png", "", "", false},
		{"avatars/law/abc.png", "", "", false},
		{"images//abc.png", "", "", false},
	}
	for _, tt := range tests {
		got, group, ok := CategoryForKey(tt.key)
		if ok != tt.wantOK || got != tt.want || group != tt.group {
			t.Errorf("CategoryForKey(%q) = %q, %q, %v", tt.key, got, group, ok)
		}
	}
}
