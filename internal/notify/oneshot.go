package notify

import (
	"context"
	"time"

	"github.com/noteduco342/unichat-backend/internal/apperr"
	"github.com/noteduco342/unichat-backend/internal/models"
)

// LatestSource reads the newest messages of a group without subscribing.
type LatestSource interface {
	LatestWindow(ctx context.Context, groupID string, n int) ([]models.Message, error)
}

// CountOnce computes the unread counts of every group userID has read,
// for callers without a live session.
func CountOnce(ctx context.Context, cursors CursorStore, src LatestSource, userID string, n int) (Counts, error) {
	const op = "notify.CountOnce"

	out := Counts{PerGroup: map[string]int{}}
	if userID == "" {
		return out, apperr.Permission(op, "Not signed in")
	}
	list, err := cursors.ListForUser(ctx, userID)
	if err != nil {
		return out, apperr.Transport(op, err)
	}
	for _, c := range list {
		window, err := src.LatestWindow(ctx, c.GroupID, n)
		if err != nil {
			// Groups dropped from the catalogue keep their cursors; skip them.
			if apperr.KindOf(err) == apperr.KindNotFound {
				continue
			}
			return out, apperr.Transport(op, err)
		}
		count := UnreadCount(window, c.LastRead, userID)
		out.PerGroup[c.GroupID] = count
		out.Total += count
	}
	return out, nil
}

// MarkReadOnce stores max(now, newest message) as the group's cursor and
// returns the stored value, which never moves backwards.
func MarkReadOnce(ctx context.Context, cursors CursorStore, src LatestSource, userID, groupID string, n int, now time.Time) (time.Time, error) {
	const op = "notify.MarkReadOnce"

	if userID == "" {
		return time.Time{}, apperr.Permission(op, "Not signed in")
	}
	window, err := src.LatestWindow(ctx, groupID, n)
	if err != nil {
		return time.Time{}, apperr.Transport(op, err)
	}
	lastRead := now.UTC()
	if len(window) > 0 {
		if newest := window[len(window)-1].CreatedAt; newest.After(lastRead) {
			lastRead = newest
		}
	}
	stored, err := cursors.UpsertMonotonic(ctx, userID, groupID, lastRead)
	if err != nil {
		return time.Time{}, apperr.Transport(op, err)
	}
	return stored, nil
}
