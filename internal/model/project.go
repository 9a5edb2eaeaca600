// Package model defines the creative-production entities owned by a project factory.
//
// Entities are plain values. Every type carries a Clone method that deep-copies
// slices and maps so caches can hand out copies without aliasing.
package model

import (
	"maps"
	"slices"
	"time"
)

// ProjectType classifies what kind of production a project is.
type ProjectType string

const (
	ProjectTypeFilm        ProjectType = "FILM"
	ProjectTypeSeries      ProjectType = "SERIES"
	ProjectTypeShortForm   ProjectType = "SHORT_FORM"
	ProjectTypeAnimation   ProjectType = "ANIMATION"
	ProjectTypeDocumentary ProjectType = "DOCUMENTARY"
	ProjectTypeComic       ProjectType = "COMIC"
	ProjectTypeOther       ProjectType = "OTHER"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusPlanning  ProjectStatus = "PLANNING"
	StatusActive    ProjectStatus = "ACTIVE"
	StatusOnHold    ProjectStatus = "ON_HOLD"
	StatusCompleted ProjectStatus = "COMPLETED"
	StatusArchived  ProjectStatus = "ARCHIVED"
)

// ProductionPhase is the current production phase.
type ProductionPhase string

const (
	PhaseDevelopment   ProductionPhase = "DEVELOPMENT"
	PhasePreProduction ProductionPhase = "PRE_PRODUCTION"
	PhaseProduction    ProductionPhase = "PRODUCTION"
	PhasePost          ProductionPhase = "POST_PRODUCTION"
	PhaseDistribution  ProductionPhase = "DISTRIBUTION"
)

// Project is the root record of a project factory.
type Project struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Type         ProjectType     `json:"type"`
	Status       ProjectStatus   `json:"status"`
	Phase        ProductionPhase `json:"phase"`
	Timeline     Timeline        `json:"timeline"`
	Budget       *Budget         `json:"budget,omitempty"`
	Team         []TeamMember    `json:"team,omitempty"`
	Deliverables []Deliverable   `json:"deliverables,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Timeline holds planned project dates.
type Timeline struct {
	StartDate  *time.Time  `json:"startDate,omitempty"`
	EndDate    *time.Time  `json:"endDate,omitempty"`
	Milestones []Milestone `json:"milestones,omitempty"`
}

// Milestone is a dated checkpoint on the timeline.
type Milestone struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DueDate   time.Time `json:"dueDate"`
	Completed bool      `json:"completed"`
}

// Budget tracks planned and spent amounts in minor currency units.
type Budget struct {
	Currency string           `json:"currency"`
	Total    int64            `json:"total"`
	Spent    int64            `json:"spent"`
	Lines    map[string]int64 `json:"lines,omitempty"`
}

// TeamMember is a person attached to the project.
type TeamMember struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// Deliverable is an output the project owes.
type Deliverable struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Completed bool       `json:"completed"`
}

// Clone returns a deep copy of the project.
func (p Project) Clone() Project {
	out := p
	out.Timeline.Milestones = slices.Clone(p.Timeline.Milestones)
	if p.Budget != nil {
		b := *p.Budget
		b.Lines = maps.Clone(p.Budget.Lines)
		out.Budget = &b
	}
	out.Team = slices.Clone(p.Team)
	out.Deliverables = slices.Clone(p.Deliverables)
	return out
}
