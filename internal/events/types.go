// Package events provides change notifications for storyforge repositories.
//
// Events are published on topics. A topic names the scope of a change, such
// as one project or the content of one project; subscribers to GlobalTopic
// receive everything. A subscription topic may also be a glob pattern such
// as AllProjectsTopic.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventProjectCreated indicates a project factory was created.
	EventProjectCreated EventType = "project_created"
	// EventProjectUpdated indicates the project record changed.
	EventProjectUpdated EventType = "project_updated"
	// EventProjectDeleted indicates a project factory was deleted.
	EventProjectDeleted EventType = "project_deleted"

	// EventContentChanged indicates a story, script or storyboard changed.
	EventContentChanged EventType = "content_changed"
	// EventCharactersChanged indicates a project's characters changed.
	EventCharactersChanged EventType = "characters_changed"
	// EventDistributionChanged indicates analytics, connections or schedules changed.
	EventDistributionChanged EventType = "distribution_changed"

	// EventSynced indicates a background sync stored a project.
	EventSynced EventType = "synced"
	// EventWarning indicates a non-fatal problem, such as a failed persist.
	EventWarning EventType = "warning"
)

// Topic prefixes.
const (
	topicProject      = "project:"
	topicContent      = "content:"
	topicCharacters   = "characters:"
	topicDistribution = "distribution:"
)

// AllProjectsTopic is the pattern matching the record topic of every project.
const AllProjectsTopic = topicProject + "*"

// ProjectTopic is the topic for changes to one project record.
func ProjectTopic(projectID string) string { return topicProject + projectID }

// ContentTopic is the topic for story, script and storyboard changes in a project.
func ContentTopic(projectID string) string { return topicContent + projectID }

// CharactersTopic is the topic for character changes in a project.
func CharactersTopic(projectID string) string { return topicCharacters + projectID }

// DistributionTopic is the topic for distribution changes in a project.
func DistributionTopic(projectID string) string { return topicDistribution + projectID }

// Event represents a published event.
type Event struct {
	Type  EventType `json:"type"`
	Topic string    `json:"topic"`
	Data  any       `json:"data"`
	Time  time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, topic string, data any) Event {
	return Event{
		Type:  eventType,
		Topic: topic,
		Data:  data,
		Time:  time.Now(),
	}
}

// Change describes which entity a change event is about.
type Change struct {
	ProjectID string `json:"project_id"`
	Kind      string `json:"kind"` // project, story, script, storyboard, character, analytics, connection, post
	ID        string `json:"id"`
	Op        string `json:"op"` // create, update, delete, refresh
}

// WarningData represents a non-fatal warning.
type WarningData struct {
	ProjectID string `json:"project_id,omitempty"`
	Message   string `json:"message"`
}
