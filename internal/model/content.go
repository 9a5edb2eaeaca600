package model

import (
	"maps"
	"slices"
	"time"
)

// Character is a character profile within a project.
type Character struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Archetype   string    `json:"archetype,omitempty"`
	Description string    `json:"description,omitempty"`
	Traits      []string  `json:"traits,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the character.
func (c Character) Clone() Character {
	out := c
	out.Traits = slices.Clone(c.Traits)
	return out
}

// Story is a narrative within a project.
type Story struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	Title        string    `json:"title"`
	Synopsis     string    `json:"synopsis,omitempty"`
	Genre        string    `json:"genre,omitempty"`
	Themes       []string  `json:"themes,omitempty"`
	Status       string    `json:"status,omitempty"`
	CharacterIDs []string  `json:"characterIds,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the story.
func (s Story) Clone() Story {
	out := s
	out.Themes = slices.Clone(s.Themes)
	out.CharacterIDs = slices.Clone(s.CharacterIDs)
	out.Tags = slices.Clone(s.Tags)
	return out
}

// Script is a screenplay, optionally attached to a story.
// A nil StoryID marks an orphan script, which is valid.
type Script struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	StoryID    *string   `json:"storyId,omitempty"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	Format     string    `json:"format,omitempty"`
	Characters []string  `json:"characters,omitempty"`
	Version    int       `json:"version"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StoryRef returns the referenced story id, or "" for orphans.
func (s Script) StoryRef() string {
	if s.StoryID == nil {
		return ""
	}
	return *s.StoryID
}

// Clone returns a deep copy of the script.
func (s Script) Clone() Script {
	out := s
	if s.StoryID != nil {
		id := *s.StoryID
		out.StoryID = &id
	}
	out.Characters = slices.Clone(s.Characters)
	out.Tags = slices.Clone(s.Tags)
	return out
}

// Scene is one panel group of a storyboard.
type Scene struct {
	ID          string   `json:"id"`
	Number      int      `json:"number"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Shots       []string `json:"shots,omitempty"`
	Duration    float64  `json:"duration,omitempty"`
}

// Storyboard is a visual breakdown of a script.
type Storyboard struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	StoryID   string    `json:"storyId,omitempty"`
	ScriptID  *string   `json:"scriptId,omitempty"`
	Title     string    `json:"title"`
	Scenes    []Scene   `json:"scenes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScriptRef returns the explicitly linked script id, or "".
func (b Storyboard) ScriptRef() string {
	if b.ScriptID == nil {
		return ""
	}
	return *b.ScriptID
}

// Clone returns a deep copy of the storyboard.
func (b Storyboard) Clone() Storyboard {
	out := b
	if b.ScriptID != nil {
		id := *b.ScriptID
		out.ScriptID = &id
	}
	if b.Scenes != nil {
		out.Scenes = make([]Scene, len(b.Scenes))
		for i, sc := range b.Scenes {
			sc.Shots = slices.Clone(sc.Shots)
			out.Scenes[i] = sc
		}
	}
	out.Tags = slices.Clone(b.Tags)
	return out
}

// ProjectBible is the world/tone reference document for a project.
type ProjectBible struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"projectId"`
	Logline   string            `json:"logline,omitempty"`
	Tone      string            `json:"tone,omitempty"`
	World     string            `json:"world,omitempty"`
	Rules     []string          `json:"rules,omitempty"`
	Glossary  map[string]string `json:"glossary,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of the bible.
func (b ProjectBible) Clone() ProjectBible {
	out := b
	out.Rules = slices.Clone(b.Rules)
	out.Glossary = maps.Clone(b.Glossary)
	return out
}

// PublishingProject holds publication details for a project.
type PublishingProject struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Format      string     `json:"format,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	ISBN        string     `json:"isbn,omitempty"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	Platforms   []Platform `json:"platforms,omitempty"`
}

// Clone returns a deep copy of the publishing record.
func (p PublishingProject) Clone() PublishingProject {
	out := p
	out.Platforms = slices.Clone(p.Platforms)
	return out
}

// ContentKind names the kind of a content item in mixed result sets.
type ContentKind string

const (
	KindStory      ContentKind = "story"
	KindScript     ContentKind = "script"
	KindStoryboard ContentKind = "storyboard"
)
