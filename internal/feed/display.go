package feed

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
	"github.com/noteduco342/unichat-backend/internal/models"
	"github.com/rivo/uniseg"
)

// HeaderGap is the longest pause after which a run of messages from the
// same author keeps sharing one avatar and name header.
const HeaderGap = 5 * time.Minute

const replyPreviewRunes = 100

// RenderedMessage is a confirmed message with its display hints.
type RenderedMessage struct {
	models.Message
	ShowHeader bool          `json:"showHeader"`
	Mine       bool          `json:"mine"`
	EmojiOnly  bool          `json:"emojiOnly,omitempty"`
	SizeLabel  string        `json:"sizeLabel,omitempty"`
	Reply      *ReplyPreview `json:"reply,omitempty"`
}

// ReplyPreview describes the message a reply points at.
type ReplyPreview struct {
	MessageID   string `json:"messageId"`
	AuthorID    string `json:"uid"`
	AuthorName  string `json:"displayName"`
	AuthorPhoto string `json:"photoURL,omitempty"`
	Preview     string `json:"preview"`
}

// ShowHeader reports whether msgs[i] starts a new header run: the first
// message, a change of author, or more than HeaderGap since the previous one.
func ShowHeader(msgs []models.Message, i int) bool {
	if i == 0 {
		return true
	}
	prev, cur := &msgs[i-1], &msgs[i]
	if prev.AuthorID != cur.AuthorID {
		return true
	}
	return cur.CreatedAt.Sub(prev.CreatedAt) > HeaderGap
}

// Render computes display hints for an ascending list. lookup resolves reply
// targets among the loaded messages.
func Render(msgs []models.Message, viewerID string, lookup func(id string) (models.Message, bool)) []RenderedMessage {
	out := make([]RenderedMessage, len(msgs))
	for i := range msgs {
		m := msgs[i]
		r := RenderedMessage{
			Message:    m,
			ShowHeader: ShowHeader(msgs, i),
			Mine:       m.IsAuthoredBy(viewerID),
			EmojiOnly:  m.File == nil && IsEmojiOnly(m.Text),
		}
		if m.File != nil {
			r.SizeLabel = FormatFileSize(m.File.Size)
		}
		if m.ReplyToID != "" && lookup != nil {
			if target, ok := lookup(m.ReplyToID); ok {
				r.Reply = PreviewOf(&target)
			}
		}
		out[i] = r
	}
	return out
}

// PreviewOf builds the reply preview shown above a reply.
func PreviewOf(target *models.Message) *ReplyPreview {
	name := target.AuthorDisplayName
	if name == "" {
		name = "Anonymous"
	}
	return &ReplyPreview{
		MessageID:   target.ID,
		AuthorID:    target.AuthorID,
		AuthorName:  name,
		AuthorPhoto: target.AuthorPhotoRef,
		Preview:     previewText(target),
	}
}

func previewText(m *models.Message) string {
	if text := strings.TrimSpace(m.Text); text != "" {
		if utf8.RuneCountInString(text) <= replyPreviewRunes {
			return text
		}
		return string([]rune(text)[:replyPreviewRunes]) + "…"
	}
	if m.File == nil {
		return ""
	}
	switch m.File.Category {
	case models.CategoryImage:
		return "Photo"
	case models.CategoryAudio:
		return "Audio"
	case models.CategoryVideo:
		return "Video"
	}
	return m.File.Name
}

// FormatFileSize renders a byte count as B, KB or MB with one decimal.
func FormatFileSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
}

// IsEmojiOnly reports whether text, once trimmed, is made only of emoji
// grapheme clusters. Plain digits and '#' never count.
func IsEmojiOnly(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		cluster := gr.Str()
		if strings.TrimSpace(cluster) == "" {
			continue
		}
		if isASCII(cluster) || !gomoji.ContainsEmoji(cluster) {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
