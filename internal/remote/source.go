// Package remote talks to the project API that is the cross-device system of
// record. Every call returns a tri-state: data, not-modified, or an error.
package remote

import (
	"context"
	"time"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
)

// Operation names, used for metrics and scripted failures.
const (
	OpListProjects   = "list_projects"
	OpProjectDetails = "project_details"
	OpCharacters     = "characters"
)

// Status distinguishes fresh data from a not-modified answer.
type Status int

const (
	StatusData Status = iota
	StatusNotModified
)

// Result is a successful remote answer. A failed call returns an error
// instead. NotModified is distinct from empty data: empty data replaces the
// cache while NotModified leaves it untouched.
type Result[T any] struct {
	Status Status
	Value  T
}

// Data wraps a fresh value.
func Data[T any](v T) Result[T] {
	return Result[T]{Status: StatusData, Value: v}
}

// NotModified reports that the caller's copy is current.
func NotModified[T any]() Result[T] {
	return Result[T]{Status: StatusNotModified}
}

// IsNotModified reports whether the remote said the cached copy is current.
func (r Result[T]) IsNotModified() bool {
	return r.Status == StatusNotModified
}

// IsNotFound reports whether err is the remote answering that a project does
// not exist. Read paths treat that as an empty result, not a failure.
func IsNotFound(err error) bool {
	return errors.HasCode(err, errors.CodeProjectNotFound)
}

// Source is the remote project API. GetProjectDetails and GetCharacters
// return a PROJECT_NOT_FOUND error for an unknown project.
type Source interface {
	ListProjects(ctx context.Context, limit int) (Result[[]ProjectSummary], error)
	GetProjectDetails(ctx context.Context, id string) (Result[*ProjectDetails], error)
	GetCharacters(ctx context.Context, projectID string) (Result[[]model.Character], error)
}

// ProjectSummary is one entry of the project list.
type ProjectSummary struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Type        model.ProjectType `json:"type"`
	FactoryType factory.Type      `json:"factoryType"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ProjectDetails is a full project with every owned collection.
type ProjectDetails struct {
	Project     model.Project            `json:"project"`
	Characters  []model.Character        `json:"characters"`
	Stories     []model.Story            `json:"stories"`
	Scripts     []model.Script           `json:"scripts"`
	Storyboards []model.Storyboard       `json:"storyboards"`
	Publishing  *model.PublishingProject `json:"publishingProject,omitempty"`
	Bible       *model.ProjectBible      `json:"projectBible,omitempty"`
	Metadata    *factory.Metadata        `json:"metadata,omitempty"`
}

// ToFactory converts the details into an aggregate. Missing metadata falls
// back to factory defaults.
func (d *ProjectDetails) ToFactory() *factory.ProjectFactory {
	meta := factory.DefaultMetadata()
	if d.Metadata != nil {
		meta = *d.Metadata
		if meta.Version == "" {
			meta.Version = factory.MetadataVersion
		}
	}
	f := &factory.ProjectFactory{
		ProjectID:   d.Project.ID,
		Project:     d.Project,
		Characters:  d.Characters,
		Stories:     d.Stories,
		Scripts:     d.Scripts,
		Storyboards: d.Storyboards,
		Bible:       d.Bible,
		Publishing:  d.Publishing,
		Metadata:    meta,
	}
	return f.Clone()
}

// Summary derives the list entry for these details.
func (d *ProjectDetails) Summary() ProjectSummary {
	ft := factory.TypeAPI
	if d.Metadata != nil {
		ft = factory.TypeFor(*d.Metadata)
	}
	return ProjectSummary{
		ID:          d.Project.ID,
		Title:       d.Project.Title,
		Description: d.Project.Description,
		Type:        d.Project.Type,
		FactoryType: ft,
		CreatedAt:   d.Project.CreatedAt,
		UpdatedAt:   d.Project.UpdatedAt,
	}
}
