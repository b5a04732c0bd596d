package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
	"gorm.io/gorm"
)

// Base is the timestamp fixtures count from.
var Base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// TestHelper provides utility functions for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// Identity returns a signed-in identity with default values
func (h *TestHelper) Identity(userID, major string) models.Identity {
	if userID == "" {
		userID = "user-1"
	}
	return models.Identity{
		UserID:      userID,
		DisplayName: "User " + userID,
		PhotoURL:    "https://example.com/" + userID + ".jpg",
		Major:       major,
	}
}

// Message creates a confirmed message at Base plus offset
func (h *TestHelper) Message(id, groupID, authorID string, offset time.Duration) models.Message {
	return models.Message{
		ID:                id,
		GroupID:           groupID,
		AuthorID:          authorID,
		AuthorDisplayName: "User " + authorID,
		Text:              "message " + id,
		CreatedAt:         Base.Add(offset),
		DeliveryState:     models.DeliveryConfirmed,
	}
}

// Messages creates n ascending messages one minute apart with ids m001, m002, ...
func (h *TestHelper) Messages(groupID, authorID string, n int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = h.Message(fmt.Sprintf("m%03d", i+1), groupID, authorID, time.Duration(i)*time.Minute)
	}
	return out
}

// IDs lists the identifiers of msgs in order
func IDs(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].ID
	}
	return out
}

// AssertError checks if an error occurred when it should (or shouldn't)
func (h *TestHelper) AssertError(err error, shouldErr bool, testName string) {
	h.t.Helper()
	if (err != nil) != shouldErr {
		if shouldErr {
			h.t.Errorf("%s: expected error but got nil", testName)
		} else {
			h.t.Errorf("%s: unexpected error: %v", testName, err)
		}
	}
}

// AssertEqual checks if two values are equal
func (h *TestHelper) AssertEqual(got, want interface{}, testName string) {
	h.t.Helper()
	if got != want {
		h.t.Errorf("%s: got %v, want %v", testName, got, want)
	}
}

// AssertAscending fails when msgs is not in (createdAt, id) order
func (h *TestHelper) AssertAscending(msgs []models.Message, testName string) {
	h.t.Helper()
	for i := 1; i < len(msgs); i++ {
		if !models.Before(&msgs[i-1], &msgs[i]) {
			h.t.Errorf("%s: %s sorts after %s", testName, msgs[i-1].ID, msgs[i].ID)
		}
	}
}

// GetRecordNotFoundError returns the error repositories report for a missing row
func GetRecordNotFoundError() error {
	return gorm.ErrRecordNotFound
}
