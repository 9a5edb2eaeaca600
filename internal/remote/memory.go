package remote

import (
	"context"
	"slices"
	"sync"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
)

// MemorySource is an in-process Source. Each resource carries a version; a
// resource served once answers NotModified until it changes, which mirrors
// what HTTPClient sees from a server honoring If-None-Match. Failures can be
// scripted per operation.
type MemorySource struct {
	mu       sync.Mutex
	projects map[string]*ProjectDetails
	order    []string
	clock    int
	versions map[string]int // resource key -> version
	served   map[string]int // resource key -> version last served
	failures map[string]error
	calls    map[string]int
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		projects: make(map[string]*ProjectDetails),
		versions: make(map[string]int),
		served:   make(map[string]int),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

const listKey = "list"

func detailsKey(id string) string    { return "details:" + id }
func charactersKey(id string) string { return "characters:" + id }

func (m *MemorySource) bump(keys ...string) {
	m.clock++
	for _, k := range keys {
		m.versions[k] = m.clock
	}
}

// PutProject adds or replaces a project on the remote.
func (m *MemorySource) PutProject(d ProjectDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := d.Project.ID
	if _, ok := m.projects[id]; !ok {
		m.order = append(m.order, id)
	}
	f := d.ToFactory()
	m.projects[id] = &ProjectDetails{
		Project:     f.Project,
		Characters:  f.Characters,
		Stories:     f.Stories,
		Scripts:     f.Scripts,
		Storyboards: f.Storyboards,
		Publishing:  f.Publishing,
		Bible:       f.Bible,
		Metadata:    cloneMetadata(d.Metadata),
	}
	m.bump(listKey, detailsKey(id), charactersKey(id))
}

// RemoveProject deletes a project from the remote.
func (m *MemorySource) RemoveProject(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return
	}
	delete(m.projects, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	m.bump(listKey, detailsKey(id), charactersKey(id))
}

// SetCharacters replaces a project's characters on the remote.
func (m *MemorySource) SetCharacters(projectID string, chars []model.Character) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.projects[projectID]
	if !ok {
		return
	}
	d.Characters = make([]model.Character, 0, len(chars))
	for _, c := range chars {
		d.Characters = append(d.Characters, c.Clone())
	}
	m.bump(detailsKey(projectID), charactersKey(projectID))
}

// Fail makes every call to op return err until Fail(op, nil) clears it.
func (m *MemorySource) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op has been invoked.
func (m *MemorySource) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ClearETags forgets what has been served, forcing full answers.
func (m *MemorySource) ClearETags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.served = make(map[string]int)
}

// begin records a call and returns its scripted failure, if any.
func (m *MemorySource) begin(ctx context.Context, op string) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return errors.ErrRemoteUnavailable(op).WithCause(err)
	}
	if err := m.failures[op]; err != nil {
		return errors.ErrRemoteUnavailable(op).WithCause(err)
	}
	return nil
}

// fresh reports whether key changed since it was last served, and marks it served.
func (m *MemorySource) fresh(key string) bool {
	v := m.versions[key]
	if last, ok := m.served[key]; ok && last == v {
		return false
	}
	m.served[key] = v
	return true
}

// ListProjects returns summaries in insertion order, at most limit.
func (m *MemorySource) ListProjects(ctx context.Context, limit int) (Result[[]ProjectSummary], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpListProjects); err != nil {
		return Result[[]ProjectSummary]{}, err
	}
	if !m.fresh(listKey) {
		return NotModified[[]ProjectSummary](), nil
	}
	out := make([]ProjectSummary, 0, len(m.order))
	for _, id := range m.order {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.projects[id].Summary())
	}
	return Data(out), nil
}

// GetProjectDetails returns a copy of one project's details.
func (m *MemorySource) GetProjectDetails(ctx context.Context, id string) (Result[*ProjectDetails], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpProjectDetails); err != nil {
		return Result[*ProjectDetails]{}, err
	}
	d, ok := m.projects[id]
	if !ok {
		return Result[*ProjectDetails]{}, errors.ErrProjectNotFound(id)
	}
	if !m.fresh(detailsKey(id)) {
		return NotModified[*ProjectDetails](), nil
	}
	f := d.ToFactory()
	return Data(&ProjectDetails{
		Project:     f.Project,
		Characters:  f.Characters,
		Stories:     f.Stories,
		Scripts:     f.Scripts,
		Storyboards: f.Storyboards,
		Publishing:  f.Publishing,
		Bible:       f.Bible,
		Metadata:    cloneMetadata(d.Metadata),
	}), nil
}

// GetCharacters returns a copy of one project's characters.
func (m *MemorySource) GetCharacters(ctx context.Context, projectID string) (Result[[]model.Character], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpCharacters); err != nil {
		return Result[[]model.Character]{}, err
	}
	d, ok := m.projects[projectID]
	if !ok {
		return Result[[]model.Character]{}, errors.ErrProjectNotFound(projectID)
	}
	if !m.fresh(charactersKey(projectID)) {
		return NotModified[[]model.Character](), nil
	}
	out := make([]model.Character, 0, len(d.Characters))
	for _, c := range d.Characters {
		out = append(out, c.Clone())
	}
	return Data(out), nil
}

func cloneMetadata(m *factory.Metadata) *factory.Metadata {
	if m == nil {
		return nil
	}
	out := *m
	out.Tags = slices.Clone(m.Tags)
	return &out
}
