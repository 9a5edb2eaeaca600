package api

import (
	"net/http"
	"strconv"
	"strings"

	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/model"
	"github.com/randalmurphal/storyforge/internal/repository"
)

// handleListProjects returns projects, optionally filtered by ?type=,
// ?status=, ?phase= or ?q=.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		projects []model.Project
		err      error
	)
	switch {
	case q.Get("q") != "":
		projects, err = s.repos.Projects.Search(ctx, q.Get("q"))
	case q.Get("type") != "":
		projects, err = s.repos.Projects.ListByType(ctx, model.ProjectType(strings.ToUpper(q.Get("type"))))
	case q.Get("status") != "":
		projects, err = s.repos.Projects.ListByStatus(ctx, model.ProjectStatus(strings.ToUpper(q.Get("status"))))
	case q.Get("phase") != "":
		projects, err = s.repos.Projects.ListByPhase(ctx, model.ProductionPhase(strings.ToUpper(q.Get("phase"))))
	default:
		projects, err = s.repos.Projects.List(ctx)
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	JSONResponse(w, projects)
}

// handleGetProject returns one project.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok, err := s.repos.Projects.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	if !ok {
		HandleError(w, storyerrors.ErrProjectNotFound(id))
		return
	}
	JSONResponse(w, p)
}

// requireProject writes a 404 and returns false when the project is unknown.
func (s *Server) requireProject(w http.ResponseWriter, r *http.Request, id string) bool {
	_, ok, err := s.repos.Projects.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return false
	}
	if !ok {
		HandleError(w, storyerrors.ErrProjectNotFound(id))
		return false
	}
	return true
}

// handleListStories returns a project's stories.
func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.requireProject(w, r, id) {
		return
	}
	stories, err := s.repos.Content.GetStories(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, stories)
}

// handleListScripts returns a project's scripts, or only those of ?story=.
func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.requireProject(w, r, id) {
		return
	}
	var (
		scripts []model.Script
		err     error
	)
	if story := r.URL.Query().Get("story"); story != "" {
		scripts, err = s.repos.Content.GetScriptsForStory(r.Context(), story)
	} else {
		scripts, err = s.repos.Content.GetScripts(r.Context(), id)
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, scripts)
}

// handleListStoryboards returns the storyboards linked to a script.
func (s *Server) handleListStoryboards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.repos.Content.GetStoryboardsForScript(r.Context(), r.PathValue("id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, boards)
}

// handleListCharacters returns a project's characters.
func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.requireProject(w, r, id) {
		return
	}
	chars, err := s.repos.Characters.GetCharacters(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, chars)
}

// handleCharacterContent returns the stories, scripts and storyboards a
// character appears in.
func (s *Server) handleCharacterContent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok, err := s.repos.Characters.GetCharacter(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	} else if !ok {
		HandleError(w, storyerrors.ErrEntityNotFound("character", id))
		return
	}
	content, err := s.repos.Content.GetCharacterContent(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, content)
}

// distributionView is the combined distribution state of a project.
type distributionView struct {
	Analytics   *model.DistributionAnalytics `json:"analytics"`
	Connections []model.PlatformConnection   `json:"connections"`
	Scheduled   []model.ScheduledPost        `json:"scheduled"`
}

// handleGetDistribution returns analytics, connections and pending posts.
func (s *Server) handleGetDistribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	var (
		view distributionView
		err  error
	)
	if view.Analytics, err = s.repos.Distribution.GetAnalytics(ctx, id); err != nil {
		HandleError(w, err)
		return
	}
	if view.Connections, err = s.repos.Distribution.Connections(ctx, id); err != nil {
		HandleError(w, err)
		return
	}
	if view.Scheduled, err = s.repos.Distribution.ScheduledPosts(ctx, id, model.ScheduleScheduled); err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, view)
}

// handleSearch searches content with ?q=, narrowed by ?project=, ?kind=
// (repeatable) and capped by ?limit=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ContentFilter{ProjectID: q.Get("project")}
	for _, k := range q["kind"] {
		filter.Kinds = append(filter.Kinds, model.ContentKind(strings.ToLower(k)))
	}
	items, err := s.repos.Content.SearchContent(r.Context(), q.Get("q"), filter)
	if err != nil {
		HandleError(w, err)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			JSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if n > 0 && n < len(items) {
			items = items[:n]
		}
	}
	JSONResponse(w, items)
}
