// Package directory holds the configured group catalogue and the rules derived from it.
package directory

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/noteduco342/unichat-backend/internal/models"
)

var Majors = []string{
	"Arabic Language and Literature",
	"Islamic Studies",
	"Advertising and Digital Marketing",
	"Applied Psychology",
	"Applied Sociology",
	"English Language and Translation",
	"Communication and Crisis",
	"Dental Surgery",
	"Digital Media",
	"Education in Special Education",
	"Law",
	"Mass Communication and Media - Digital Journalism",
	"Mass Communication and Media - Advertising",
	"Mass Communication and Media - Public Relations",
	"Public Relations",
	"Artificial Intelligence and Robotics",
	"Civil Engineering",
	"Computer Engineering",
	"Computer Science",
	"Cybersecurity",
	"Networks and Communication Engineering",
	"Nursing",
	"Nutrition and Dietetics",
	"Pharmacy",
	"Software Engineering",
	"Accounting",
	"Business Analytics",
	"Finance and Banking",
	"Human Resource Management",
	"Management",
	"Management Information Systems",
	"Marketing",
}

var GeneralChannels = []string{
	"General Chat",
}

var Courses = []string{
	// compulsory
	"Computer Skills",
	"Science and Life",
	"English I & II",
	"Arabic Language",
	"Islamic Culture",
	"UAE Studies",
	"Innovation and Entrepreneurship",
	"Scientific Research Methodology",

	// society and civilization electives
	"Arabs & Muslims Contributions",
	"Physical Education & Health",
	"Introduction to Psychology",
	"Arab Society",
	"Environmental Awareness",
	"Ethical Awareness",

	// managerial skills electives
	"Law and Society",
	"Thinking Skills",
	"Self Assessment",
	"Time Management",
	"Leadership and Teamwork",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// GroupID derives the identifier of a group from its display name:
// whitespace runs become a hyphen, "&" becomes "and", then lowercase.
func GroupID(name string) string {
	id := whitespaceRe.ReplaceAllString(name, "-")
	id = strings.ReplaceAll(id, "&", "and")
	return strings.ToLower(id)
}

// Catalogue is an immutable, validated set of groups.
type Catalogue struct {
	groups []models.Group
	byID   map[string]int
}

// NewCatalogue builds a catalogue and rejects names whose identifiers collide.
func NewCatalogue(majors, general, courses []string) (*Catalogue, error) {
	c := &Catalogue{byID: make(map[string]int)}
	add := func(names []string, category models.GroupCategory) error {
		for _, name := range names {
			id := GroupID(name)
			if id == "" {
				return fmt.Errorf("group %q normalizes to an empty id", name)
			}
			if i, dup := c.byID[id]; dup {
				return fmt.Errorf("group %q collides with %q on id %q", name, c.groups[i].Name, id)
			}
			c.byID[id] = len(c.groups)
			c.groups = append(c.groups, models.Group{ID: id, Name: name, Category: category})
		}
		return nil
	}

	if err := add(majors, models.GroupMajor); err != nil {
		return nil, err
	}
	if err := add(general, models.GroupGeneral); err != nil {
		return nil, err
	}
	if err := add(courses, models.GroupCourse); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the built-in university catalogue.
func Default() *Catalogue {
	c, err := NewCatalogue(Majors, GeneralChannels, Courses)
	if err != nil {
		panic(err)
	}
	return c
}

// Groups returns a copy of every group in catalogue order.
func (c *Catalogue) Groups() []models.Group {
	out := make([]models.Group, len(c.groups))
	copy(out, c.groups)
	return out
}

func (c *Catalogue) Lookup(id string) (models.Group, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Group{}, false
	}
	return c.groups[i], true
}

// MajorGroupID returns the group of a declared major, if the major is catalogued.
func (c *Catalogue) MajorGroupID(major string) (string, bool) {
	if strings.TrimSpace(major) == "" {
		return "", false
	}
	g, ok := c.Lookup(GroupID(major))
	if !ok || g.Category != models.GroupMajor {
		return "", false
	}
	return g.ID, true
}
