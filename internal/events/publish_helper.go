package events

// PublishHelper wraps event publishing with nil-safety and one method per
// change scope. All methods are safe to call when the publisher is nil.
type PublishHelper struct {
	publisher Publisher
}

// NewPublishHelper creates a new PublishHelper wrapping the given publisher.
// If p is nil, all publish operations become no-ops.
func NewPublishHelper(p Publisher) *PublishHelper {
	return &PublishHelper{publisher: p}
}

// Publish sends an event to the underlying publisher.
func (ep *PublishHelper) Publish(ev Event) {
	if ep == nil || ep.publisher == nil {
		return
	}
	ep.publisher.Publish(ev)
}

// ProjectChanged publishes a project lifecycle event on the project's topic.
func (ep *PublishHelper) ProjectChanged(eventType EventType, projectID, op string) {
	ep.Publish(NewEvent(eventType, ProjectTopic(projectID), Change{
		ProjectID: projectID,
		Kind:      "project",
		ID:        projectID,
		Op:        op,
	}))
}

// ContentChanged publishes a story, script or storyboard change.
func (ep *PublishHelper) ContentChanged(projectID, kind, id, op string) {
	ep.Publish(NewEvent(EventContentChanged, ContentTopic(projectID), Change{
		ProjectID: projectID,
		Kind:      kind,
		ID:        id,
		Op:        op,
	}))
}

// CharactersChanged publishes a character change.
func (ep *PublishHelper) CharactersChanged(projectID, id, op string) {
	ep.Publish(NewEvent(EventCharactersChanged, CharactersTopic(projectID), Change{
		ProjectID: projectID,
		Kind:      "character",
		ID:        id,
		Op:        op,
	}))
}

// DistributionChanged publishes an analytics, connection or schedule change.
func (ep *PublishHelper) DistributionChanged(projectID, kind, id, op string) {
	ep.Publish(NewEvent(EventDistributionChanged, DistributionTopic(projectID), Change{
		ProjectID: projectID,
		Kind:      kind,
		ID:        id,
		Op:        op,
	}))
}

// Synced publishes that background sync stored a project.
func (ep *PublishHelper) Synced(projectID string) {
	ep.Publish(NewEvent(EventSynced, ProjectTopic(projectID), Change{
		ProjectID: projectID,
		Kind:      "project",
		ID:        projectID,
		Op:        "sync",
	}))
}

// Warning publishes a non-fatal warning on the global topic.
func (ep *PublishHelper) Warning(projectID, message string) {
	ep.Publish(NewEvent(EventWarning, GlobalTopic, WarningData{
		ProjectID: projectID,
		Message:   message,
	}))
}
