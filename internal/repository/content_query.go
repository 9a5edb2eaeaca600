package repository

import (
	"bufio"
	"context"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/randalmurphal/storyforge/internal/model"
)

// CharacterContent is everything reachable from one character.
type CharacterContent struct {
	CharacterID string             `json:"characterId"`
	Stories     []model.Story      `json:"stories"`
	Scripts     []model.Script     `json:"scripts"`
	Storyboards []model.Storyboard `json:"storyboards"`
}

// GetCharacterContent returns the stories, scripts and storyboards linked to
// a character. Storyboards take two hops: the character's scripts, then the
// storyboards indexed under each of those scripts, deduplicated in script
// order.
func (r *ContentRepository) GetCharacterContent(ctx context.Context, characterID string) (CharacterContent, error) {
	out := CharacterContent{
		CharacterID: characterID,
		Stories:     []model.Story{},
		Scripts:     []model.Script{},
		Storyboards: []model.Storyboard{},
	}
	if err := r.ensureWarm(ctx); err != nil {
		return out, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.characterStories.Children(characterID) {
		if s, ok := r.stories.Get(id); ok {
			out.Stories = append(out.Stories, s)
		}
	}
	seen := make(map[string]bool)
	for _, id := range r.characterScripts.Children(characterID) {
		s, ok := r.scripts.Get(id)
		if !ok {
			continue
		}
		out.Scripts = append(out.Scripts, s)
		for _, b := range r.storyboardsFor(id) {
			if !seen[b.ID] {
				seen[b.ID] = true
				out.Storyboards = append(out.Storyboards, b)
			}
		}
	}
	return out, nil
}

// ContentItem is one story, script or storyboard in a mixed result set.
type ContentItem struct {
	Kind      model.ContentKind `json:"kind"`
	ID        string            `json:"id"`
	ProjectID string            `json:"projectId"`
	Title     string            `json:"title"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ContentFilter narrows SearchContent. Zero values match everything.
type ContentFilter struct {
	ProjectID string
	Kinds     []model.ContentKind
}

func (f ContentFilter) wants(k model.ContentKind) bool {
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, k)
}

// SearchContent matches query case-insensitively against titles, story
// synopses and script bodies. Results are grouped stories, scripts, then
// storyboards.
func (r *ContentRepository) SearchContent(ctx context.Context, query string, filter ContentFilter) ([]ContentItem, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []ContentItem{}, nil
	}
	owners, err := r.scope(ctx, filter.ProjectID)
	if err != nil {
		return []ContentItem{}, err
	}
	has := func(fields ...string) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				return true
			}
		}
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []ContentItem{}
	if filter.wants(model.KindStory) {
		for _, pid := range owners {
			for _, s := range r.stories.ByOwner(pid) {
				if has(s.Title, s.Synopsis) {
					out = append(out, storyItem(s))
				}
			}
		}
	}
	if filter.wants(model.KindScript) {
		for _, pid := range owners {
			for _, s := range r.scripts.ByOwner(pid) {
				if has(s.Title, s.Content) {
					out = append(out, scriptItem(s))
				}
			}
		}
	}
	if filter.wants(model.KindStoryboard) {
		for _, pid := range owners {
			for _, b := range r.storyboards.ByOwner(pid) {
				if has(b.Title) {
					out = append(out, storyboardItem(b))
				}
			}
		}
	}
	return out, nil
}

// scope returns the projects a query covers: one project, or all of them.
func (r *ContentRepository) scope(ctx context.Context, projectID string) ([]string, error) {
	if projectID != "" {
		ok, err := r.ensureProject(ctx, projectID)
		if !ok {
			return nil, err
		}
		return []string{projectID}, nil
	}
	if err := r.ensureWarm(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stories.Owners(), nil
}

// RecentContent returns a project's content, most recently updated first.
// A limit of zero or less returns everything.
func (r *ContentRepository) RecentContent(ctx context.Context, projectID string, limit int) ([]ContentItem, error) {
	ok, err := r.ensureProject(ctx, projectID)
	if !ok {
		return []ContentItem{}, err
	}

	r.mu.RLock()
	out := []ContentItem{}
	for _, s := range r.stories.ByOwner(projectID) {
		out = append(out, storyItem(s))
	}
	for _, s := range r.scripts.ByOwner(projectID) {
		out = append(out, scriptItem(s))
	}
	for _, b := range r.storyboards.ByOwner(projectID) {
		out = append(out, storyboardItem(b))
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func storyItem(s model.Story) ContentItem {
	return ContentItem{Kind: model.KindStory, ID: s.ID, ProjectID: s.ProjectID, Title: s.Title, UpdatedAt: s.UpdatedAt}
}

func scriptItem(s model.Script) ContentItem {
	return ContentItem{Kind: model.KindScript, ID: s.ID, ProjectID: s.ProjectID, Title: s.Title, UpdatedAt: s.UpdatedAt}
}

func storyboardItem(b model.Storyboard) ContentItem {
	return ContentItem{Kind: model.KindStoryboard, ID: b.ID, ProjectID: b.ProjectID, Title: b.Title, UpdatedAt: b.UpdatedAt}
}

// DialogueCounts counts spoken lines per character cue in a script body.
// The second result is false when the script is unknown.
func (r *ContentRepository) DialogueCounts(ctx context.Context, scriptID string) (map[string]int, bool, error) {
	s, ok, err := r.GetScript(ctx, scriptID)
	if !ok {
		return map[string]int{}, false, err
	}
	return CountDialogue(s.Content), true, nil
}

// CountDialogue parses screenplay text and counts dialogue blocks per
// speaker. A cue is an upper-case line followed by a non-blank line; scene
// headings, transitions and parentheticals are not cues. Extensions such as
// (V.O.) or (CONT'D) are stripped from the name.
func CountDialogue(text string) map[string]int {
	counts := make(map[string]int)
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	for i := 0; i+1 < len(lines); i++ {
		name, ok := cueName(lines[i])
		if !ok || lines[i+1] == "" {
			continue
		}
		counts[name]++
		for i+1 < len(lines) && lines[i+1] != "" {
			i++
		}
	}
	return counts
}

var sceneHeadings = []string{"INT.", "EXT.", "INT/EXT", "I/E", "EST."}

func cueName(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, "(") || strings.HasSuffix(line, ":") {
		return "", false
	}
	for _, h := range sceneHeadings {
		if strings.HasPrefix(line, h) {
			return "", false
		}
	}
	if i := strings.Index(line, "("); i > 0 {
		line = strings.TrimSpace(line[:i])
	}
	letters := 0
	for _, c := range line {
		switch {
		case unicode.IsLetter(c):
			if !unicode.IsUpper(c) {
				return "", false
			}
			letters++
		case unicode.IsDigit(c), c == ' ', c == '.', c == '\'', c == '-', c == '#':
		default:
			return "", false
		}
	}
	if letters == 0 {
		return "", false
	}
	return line, true
}
