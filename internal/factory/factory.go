// Package factory defines the ProjectFactory aggregate: one project plus every
// creative entity it owns, persisted and cached as a unit.
package factory

import (
	"slices"
	"time"

	"github.com/randalmurphal/storyforge/internal/model"
)

// Type tags a stored factory for filtered scans.
type Type string

const (
	TypeSample   Type = "sample"
	TypeTemplate Type = "template"
	TypeUser     Type = "user"
	TypeAPI      Type = "api"
)

// ParseType returns the factory type for s, defaulting to TypeUser.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeSample, TypeTemplate, TypeUser, TypeAPI:
		return Type(s)
	default:
		return TypeUser
	}
}

// MetadataVersion is the current metadata schema version.
const MetadataVersion = "1.0"

// Metadata carries the flags that decide a factory's Type.
type Metadata struct {
	IsSample    bool      `json:"isSample"`
	IsTemplate  bool      `json:"isTemplate"`
	IsUser      bool      `json:"isUser"`
	Version     string    `json:"version"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DefaultMetadata is used when a stored factory has no metadata component.
func DefaultMetadata() Metadata {
	return Metadata{IsUser: true, Version: MetadataVersion, CreatedBy: "user"}
}

// TypeFor derives the persistence type from metadata flags.
// Precedence is sample, then template, then user.
func TypeFor(m Metadata) Type {
	switch {
	case m.IsSample:
		return TypeSample
	case m.IsTemplate:
		return TypeTemplate
	default:
		return TypeUser
	}
}

// ProjectFactory is the aggregate root. ProjectID is also the storage key.
type ProjectFactory struct {
	ProjectID   string                   `json:"projectId"`
	Project     model.Project            `json:"project"`
	Characters  []model.Character        `json:"characters"`
	Stories     []model.Story            `json:"stories"`
	Scripts     []model.Script           `json:"scripts"`
	Storyboards []model.Storyboard       `json:"storyboards"`
	Bible       *model.ProjectBible      `json:"bible,omitempty"`
	Publishing  *model.PublishingProject `json:"publishing,omitempty"`
	Metadata    Metadata                 `json:"metadata"`
}

// NewEmpty creates the factory for a newly created project. All entity
// collections start empty.
func NewEmpty(project model.Project) *ProjectFactory {
	meta := DefaultMetadata()
	meta.CreatedAt = time.Now().UTC()
	return &ProjectFactory{
		ProjectID: project.ID,
		Project:   project,
		Metadata:  meta,
	}
}

// NewSample creates a factory flagged as bundled sample content.
func NewSample(project model.Project, description string) *ProjectFactory {
	f := NewEmpty(project)
	f.Metadata.IsSample = true
	f.Metadata.IsUser = false
	f.Metadata.CreatedBy = "system"
	f.Metadata.Description = description
	return f
}

// NewTemplate creates a factory flagged as a reusable template.
func NewTemplate(project model.Project, tags []string) *ProjectFactory {
	f := NewEmpty(project)
	f.Metadata.IsTemplate = true
	f.Metadata.IsUser = false
	f.Metadata.CreatedBy = "system"
	f.Metadata.Tags = slices.Clone(tags)
	return f
}

// Type returns the persistence type derived from the metadata.
func (f *ProjectFactory) Type() Type {
	return TypeFor(f.Metadata)
}

// TotalEntities counts the project plus every owned entity.
func (f *ProjectFactory) TotalEntities() int {
	n := 1 + len(f.Characters) + len(f.Stories) + len(f.Scripts) + len(f.Storyboards)
	if f.Bible != nil {
		n++
	}
	if f.Publishing != nil {
		n++
	}
	return n
}

// CharacterIDs returns the ids of every character in declaration order.
func (f *ProjectFactory) CharacterIDs() []string {
	ids := make([]string, 0, len(f.Characters))
	for _, c := range f.Characters {
		ids = append(ids, c.ID)
	}
	return ids
}

// HasStory reports whether a story with id exists in the factory.
func (f *ProjectFactory) HasStory(id string) bool {
	return slices.ContainsFunc(f.Stories, func(s model.Story) bool { return s.ID == id })
}

// Clone returns a deep copy of the factory.
func (f *ProjectFactory) Clone() *ProjectFactory {
	if f == nil {
		return nil
	}
	out := *f
	out.Project = f.Project.Clone()
	out.Characters = cloneAll(f.Characters)
	out.Stories = cloneAll(f.Stories)
	out.Scripts = cloneAll(f.Scripts)
	out.Storyboards = cloneAll(f.Storyboards)
	if f.Bible != nil {
		b := f.Bible.Clone()
		out.Bible = &b
	}
	if f.Publishing != nil {
		p := f.Publishing.Clone()
		out.Publishing = &p
	}
	out.Metadata.Tags = slices.Clone(f.Metadata.Tags)
	return &out
}

func cloneAll[T interface{ Clone() T }](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = v.Clone()
	}
	return out
}
