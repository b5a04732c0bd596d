package models

import (
	"strings"
	"testing"
	"time"
)

func TestUserToResponse(t *testing.T) {
	now := time.Now()
	user := &User{
		ID:          "uid-1",
		DisplayName: "Mona",
		PhotoURL:    "https://example.com/avatar.jpg",
		Major:       "Computer Science",
		LastSeen:    &now,
	}

	response := user.ToResponse()

	if response.ID != user.ID {
		t.Errorf("ToResponse ID = %q, want %q", response.ID, user.ID)
	}
	if response.DisplayName != user.DisplayName {
		t.Errorf("ToResponse DisplayName = %q, want %q", response.DisplayName, user.DisplayName)
	}
	if response.Major != user.Major {
		t.Errorf("ToResponse Major = %q, want %q", response.Major, user.Major)
	}
	if response.LastSeen == nil {
		t.Errorf("ToResponse LastSeen is nil")
	}
}

func TestDisplayNameOrDefault(t *testing.T) {
	if got := (&User{}).DisplayNameOrDefault(); got != "Anonymous" {
		t.Errorf("DisplayNameOrDefault = %q, want Anonymous", got)
	}
	if got := (&User{DisplayName: "Sara"}).DisplayNameOrDefault(); got != "Sara" {
		t.Errorf("DisplayNameOrDefault = %q, want Sara", got)
	}
}

func TestMessageIsMeaningful(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"text only", Message{Text: "hi"}, true},
		{"file only", Message{File: &FileRef{Name: "a.pdf"}}, true},
		{"both", Message{Text: "see attached", File: &FileRef{Name: "a.pdf"}}, true},
		{"whitespace text", Message{Text: "  \n\t"}, false},
		{"empty", Message{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsMeaningful(); got != tt.want {
				t.Errorf("IsMeaningful = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProvisionalIDNeverLooksConfirmed(t *testing.T) {
	id := NewProvisionalID()
	if !strings.HasPrefix(id, ProvisionalIDPrefix) {
		t.Fatalf("provisional id %q lacks prefix", id)
	}
	m := Message{ID: id}
	if !m.IsPending() {
		t.Errorf("message with provisional id should be pending")
	}

	if err := m.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if strings.HasPrefix(m.ID, ProvisionalIDPrefix) {
		t.Errorf("stored id kept provisional prefix: %q", m.ID)
	}
	if m.DeliveryState != DeliveryConfirmed {
		t.Errorf("DeliveryState = %q, want confirmed", m.DeliveryState)
	}
}

func TestIsAuthoredBy(t *testing.T) {
	m := Message{AuthorID: "u1"}
	if !m.IsAuthoredBy("u1") {
		t.Errorf("expected author match")
	}
	if m.IsAuthoredBy("") {
		t.Errorf("empty user id must never own a message")
	}
	if (&Message{}).IsAuthoredBy("") {
		t.Errorf("empty author and empty user must not match")
	}
}

func TestSortChronologicalTieBreaksByID(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", CreatedAt: base.Add(time.Second)},
		{ID: "b", CreatedAt: base},
		{ID: "a", CreatedAt: base},
	}

	SortChronological(msgs)

	got := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOlderThan(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cursor := Cursor{CreatedAt: base, ID: "m"}

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"earlier", Message{ID: "z", CreatedAt: base.Add(-time.Second)}, true},
		{"same time lower id", Message{ID: "a", CreatedAt: base}, true},
		{"same message", Message{ID: "m", CreatedAt: base}, false},
		{"same time higher id", Message{ID: "n", CreatedAt: base}, false},
		{"later", Message{ID: "a", CreatedAt: base.Add(time.Second)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.OlderThan(cursor); got != tt.want {
				t.Errorf("OlderThan = %v, want %v", got, tt.want)
			}
		})
	}

	if (&Message{ID: "a", CreatedAt: base}).OlderThan(Cursor{CreatedAt: base}) {
		t.Errorf("equal timestamp without cursor id must not count as older")
	}
}

func TestReverseInPlace(t *testing.T) {
	msgs := []Message{{ID: "3"}, {ID: "2"}, {ID: "1"}}
	ReverseInPlace(msgs)
	if msgs[0].ID != "1" || msgs[2].ID != "3" {
		t.Errorf("ReverseInPlace = %v", msgs)
	}
}

func TestMimeCategoryConstants(t *testing.T) {
	tests := []struct {
		name     string
		category MimeCategory
		expected string
	}{
		{"image", CategoryImage, "image"},
		{"audio", CategoryAudio, "audio"},
		{"video", CategoryVideo, "video"},
		{"document", CategoryDocument, "document"},
		{"compressed", CategoryCompressed, "compressed"},
		{"other", CategoryOther, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.category) != tt.expected {
				t.Errorf("MimeCategory = %q, want %q", string(tt.category), tt.expected)
			}
		})
	}
}
