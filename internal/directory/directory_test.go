package directory

import (
	"testing"

	"github.com/noteduco342/unichat-backend/internal/models"
)

func TestGroupID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Computer Science", "computer-science"},
		{"English I & II", "english-i-and-ii"},
		{"General Chat", "general-chat"},
		{"Mass Communication and Media - Public Relations", "mass-communication-and-media---public-relations"},
		{"Time  \tManagement", "time-management"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GroupID(tt.name); got != tt.want {
				t.Errorf("GroupID(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestDefaultCatalogueIsInjective(t *testing.T) {
	c := Default()
	total := len(Majors) + len(GeneralChannels) + len(Courses)
	if got := len(c.Groups()); got != total {
		t.Fatalf("catalogue has %d groups, want %d", got, total)
	}
}

func TestNewCatalogueRejectsCollisions(t *testing.T) {
	_, err := NewCatalogue([]string{"Arts & Design"}, nil, []string{"Arts and Design"})
	if err == nil {
		t.Fatalf("expected collision error")
	}
}

func TestLookupAndMajorGroup(t *testing.T) {
	c := Default()

	g, ok := c.Lookup("computer-science")
	if !ok || g.Category != models.GroupMajor || g.Name != "Computer Science" {
		t.Fatalf("Lookup computer-science = %+v, %v", g, ok)
	}
	if id, ok := c.MajorGroupID("Computer Science"); !ok || id != "computer-science" {
		t.Errorf("MajorGroupID = %q, %v", id, ok)
	}
	if _, ok := c.MajorGroupID("General Chat"); ok {
		t.Errorf("general channel must not resolve as a major")
	}
	if _, ok := c.MajorGroupID(""); ok {
		t.Errorf("empty major must not resolve")
	}
}

func TestWritePolicy(t *testing.T) {
	cs := models.Group{ID: "computer-science", Category: models.GroupMajor}
	general := models.Group{ID: "general-chat", Category: models.GroupGeneral}
	course := models.Group{ID: "uae-studies", Category: models.GroupCourse}

	tests := []struct {
		name   string
		policy WritePolicy
		group  models.Group
		major  string
		want   bool
	}{
		{"restricted own major", PolicyMajorRestricted, cs, "Computer Science", true},
		{"restricted other major", PolicyMajorRestricted, cs, "Law", false},
		{"restricted no major", PolicyMajorRestricted, cs, "", false},
		{"restricted general", PolicyMajorRestricted, general, "", true},
		{"restricted course", PolicyMajorRestricted, course, "Law", true},
		{"open other major", PolicyOpen, cs, "Law", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.CanWrite(tt.group, tt.major); got != tt.want {
				t.Errorf("CanWrite = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWritePolicy(t *testing.T) {
	if p, err := ParseWritePolicy("OPEN"); err != nil || p != PolicyOpen {
		t.Errorf("ParseWritePolicy(OPEN) = %q, %v", p, err)
	}
	if p, err := ParseWritePolicy(""); err != nil || p != PolicyMajorRestricted {
		t.Errorf("ParseWritePolicy(\"\") = %q, %v", p, err)
	}
	if _, err := ParseWritePolicy("members-only"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}
