package directory

import (
	"fmt"
	"strings"

	"github.com/noteduco342/unichat-backend/internal/models"
)

type WritePolicy string

const (
	// PolicyOpen lets every signed-in user post in every group.
	PolicyOpen WritePolicy = "open"
	// PolicyMajorRestricted limits major groups to students of that major.
	PolicyMajorRestricted WritePolicy = "major-restricted"
)

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyOpen:
		return PolicyOpen, nil
	case PolicyMajorRestricted, "":
		return PolicyMajorRestricted, nil
	}
	return "", fmt.Errorf("unknown write policy %q", s)
}

// CanWrite reports whether a user with the given declared major may post in group.
func (p WritePolicy) CanWrite(group models.Group, userMajor string) bool {
	if p == PolicyOpen || group.Category != models.GroupMajor {
		return true
	}
	return strings.TrimSpace(userMajor) != "" && GroupID(userMajor) == group.ID
}
