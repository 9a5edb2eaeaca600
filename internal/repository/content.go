package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/events"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/index"
	"github.com/randalmurphal/storyforge/internal/model"
)

// ContentRepository caches stories, scripts and storyboards per project and
// keeps the adjacency indices between them:
//
//	story     -> scripts      (script.StoryID)
//	script    -> storyboards  (storyboard.ScriptID, else the title match)
//	character -> stories
//	character -> scripts
//
// There is no character -> storyboard index. Storyboards for a character are
// always derived through that character's scripts (see GetCharacterContent).
// A direct index would have to be rewritten for every character whenever any
// storyboard changes.
//
// Character links are factory-level: every character of a project is linked
// to every story and script of that project.
type ContentRepository struct {
	*base

	writeMu sync.Mutex

	mu sync.RWMutex
	*contentIndex
	warm bool

	group singleflight.Group
}

// contentIndex is the cached content of every loaded project. Fields are
// guarded by ContentRepository.mu.
type contentIndex struct {
	stories     *index.Table[model.Story]
	scripts     *index.Table[model.Script]
	storyboards *index.Table[model.Storyboard]
	characters  map[string][]string // project -> character ids

	storyScripts      *index.Adjacency
	scriptStoryboards *index.Adjacency
	characterStories  *index.Adjacency
	characterScripts  *index.Adjacency
	boardScript       map[string]string // storyboard -> script it is indexed under
}

func newContentIndex() *contentIndex {
	return &contentIndex{
		stories:           index.NewTable(storyID, storyOwner),
		scripts:           index.NewTable(scriptID, scriptOwner),
		storyboards:       index.NewTable(storyboardID, storyboardOwner),
		characters:        make(map[string][]string),
		storyScripts:      index.NewAdjacency(),
		scriptStoryboards: index.NewAdjacency(),
		characterStories:  index.NewAdjacency(),
		characterScripts:  index.NewAdjacency(),
		boardScript:       make(map[string]string),
	}
}

// NewContentRepository creates a content repository.
func NewContentRepository(d Deps) *ContentRepository {
	return &ContentRepository{
		base:         newBase("content", d),
		contentIndex: newContentIndex(),
	}
}

func storyID(s model.Story) string { return s.ID }
func storyOwner(s model.Story) string { return s.ProjectID }
func scriptID(s model.Script) string { return s.ID }
func scriptOwner(s model.Script) string { return s.ProjectID }
func storyboardID(b model.Storyboard) string { return b.ID }
func storyboardOwner(b model.Storyboard) string { return b.ProjectID }

func (r *ContentRepository) loaded(projectID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stories.HasOwner(projectID)
}

// ensureProject makes sure projectID's content is cached. It reports false
// when the project is unknown everywhere; the error is set only when a tier
// failed on the way.
func (r *ContentRepository) ensureProject(ctx context.Context, projectID string) (bool, error) {
	if r.loaded(projectID) {
		r.metrics.CacheLookup(r.name, true)
		return true, nil
	}
	r.metrics.CacheLookup(r.name, false)

	v, err, _ := r.group.Do(projectID, func() (any, error) {
		if r.loaded(projectID) {
			return true, nil
		}
		return r.loadProject(ctx, projectID)
	})
	ok, _ := v.(bool)
	return ok, err
}

func (r *ContentRepository) loadProject(ctx context.Context, projectID string) (bool, error) {
	var remoteErr error
	if r.online() {
		f, notModified, err := r.fetchDetails(ctx, projectID)
		switch {
		case err != nil:
			remoteErr = err
		case notModified:
			if r.loaded(projectID) {
				return true, nil
			}
		case f != nil:
			r.absorb(f, false)
			r.saveFromRemote(ctx, f)
			return true, nil
		}
	}

	f, err := r.loadStored(ctx, projectID)
	if err != nil {
		if remoteErr != nil {
			return false, remoteErr
		}
		return false, err
	}
	if f == nil {
		return false, remoteErr
	}
	r.absorb(f, true)
	return true, nil
}

// ensureWarm loads every stored project once. By-id lookups need it because
// an id alone does not say which project to load.
func (r *ContentRepository) ensureWarm(ctx context.Context) error {
	r.mu.RLock()
	warm := r.warm
	r.mu.RUnlock()
	if warm {
		return nil
	}
	_, err, _ := r.group.Do("\x00warm", func() (any, error) {
		factories, err := r.loadAllStored(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range factories {
			r.absorb(f, true)
		}
		r.mu.Lock()
		r.warm = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// RefreshCache discards every cached project and index and reloads them from
// the store. Changes that never reached the store are lost. Readers see the
// old cache until the new one is complete.
func (r *ContentRepository) RefreshCache(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	factories, err := r.loadAllStored(ctx)
	if err != nil {
		return err
	}
	next := newContentIndex()
	for _, f := range factories {
		next.load(f, false)
	}

	r.mu.Lock()
	r.contentIndex = next
	r.warm = true
	r.mu.Unlock()

	for _, f := range factories {
		r.events.ContentChanged(f.ProjectID, "", "", "refresh")
	}
	r.logger.Debug("content cache rebuilt", "projects", len(factories))
	return nil
}

// absorb replaces a project's cached content with f and rebuilds its
// indices. With onlyIfAbsent, an already cached project is left alone.
func (r *ContentRepository) absorb(f *factory.ProjectFactory, onlyIfAbsent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load(f, onlyIfAbsent)
}

// dropProject forgets a deleted project. Later reads go back to the store
// and find nothing.
func (r *ContentRepository) dropProject(projectID string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(projectID)
}

// syncCharacters relinks a cached project after its character list changed
// to ids. A project that is not cached picks the list up when it loads.
func (r *ContentRepository) syncCharacters(projectID string, ids []string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCharacters(projectID, ids)
}

func (x *contentIndex) load(f *factory.ProjectFactory, onlyIfAbsent bool) {
	pid := f.ProjectID
	if onlyIfAbsent && x.stories.HasOwner(pid) {
		return
	}
	x.unindexProject(pid)

	stories := make([]model.Story, len(f.Stories))
	for i, s := range f.Stories {
		s.ProjectID = pid
		stories[i] = s
	}
	scripts := make([]model.Script, len(f.Scripts))
	for i, s := range f.Scripts {
		s.ProjectID = pid
		scripts[i] = s
	}
	boards := make([]model.Storyboard, len(f.Storyboards))
	for i, b := range f.Storyboards {
		b.ProjectID = pid
		boards[i] = b
	}

	x.stories.ReplaceOwner(pid, stories)
	x.scripts.ReplaceOwner(pid, scripts)
	x.storyboards.ReplaceOwner(pid, boards)
	x.characters[pid] = f.CharacterIDs()

	for _, s := range scripts {
		x.storyScripts.Link(s.StoryRef(), s.ID)
	}
	for _, b := range boards {
		x.linkStoryboard(b)
	}
	for _, c := range x.characters[pid] {
		x.linkCharacter(pid, c)
	}
}

// drop removes a project's content and every index entry it owns.
func (x *contentIndex) drop(pid string) {
	x.unindexProject(pid)
	x.stories.DropOwner(pid)
	x.scripts.DropOwner(pid)
	x.storyboards.DropOwner(pid)
}

// unindexProject removes every index entry that came from projectID.
func (x *contentIndex) unindexProject(pid string) {
	scriptIDs := x.scripts.IDsByOwner(pid)
	for _, s := range x.scripts.ByOwner(pid) {
		x.storyScripts.Unlink(s.StoryRef(), s.ID)
	}
	for _, id := range scriptIDs {
		for _, b := range x.scriptStoryboards.Children(id) {
			delete(x.boardScript, b)
		}
		x.scriptStoryboards.RemoveParent(id)
	}
	for _, id := range x.storyboards.IDsByOwner(pid) {
		if sid, ok := x.boardScript[id]; ok {
			x.scriptStoryboards.Unlink(sid, id)
			delete(x.boardScript, id)
		}
	}
	for _, c := range x.characters[pid] {
		x.unlinkCharacter(pid, c)
	}
	delete(x.characters, pid)
}

func (x *contentIndex) linkCharacter(pid, c string) {
	for _, id := range x.stories.IDsByOwner(pid) {
		x.characterStories.Link(c, id)
	}
	for _, id := range x.scripts.IDsByOwner(pid) {
		x.characterScripts.Link(c, id)
	}
}

func (x *contentIndex) unlinkCharacter(pid, c string) {
	for _, id := range x.stories.IDsByOwner(pid) {
		x.characterStories.Unlink(c, id)
	}
	for _, id := range x.scripts.IDsByOwner(pid) {
		x.characterScripts.Unlink(c, id)
	}
}

// setCharacters diffs a cached project's character list against ids and
// patches only the characters that came or went.
func (x *contentIndex) setCharacters(pid string, ids []string) {
	if !x.stories.HasOwner(pid) {
		return
	}
	prev := x.characters[pid]
	for _, c := range prev {
		if !slices.Contains(ids, c) {
			x.unlinkCharacter(pid, c)
		}
	}
	for _, c := range ids {
		if !slices.Contains(prev, c) {
			x.linkCharacter(pid, c)
		}
	}
	x.characters[pid] = slices.Clone(ids)
}

// storyboardTitleSuffixes are stripped from a storyboard title before it is
// matched against script titles.
var storyboardTitleSuffixes = []string{" - Generated Storyboard", " - Storyboard"}

// titlesMatch reports whether a storyboard without an explicit script link
// belongs to a script with scriptTitle.
func titlesMatch(boardTitle, scriptTitle string) bool {
	base := boardTitle
	for _, suffix := range storyboardTitleSuffixes {
		base = strings.TrimSuffix(base, suffix)
	}
	if base != "" && strings.Contains(scriptTitle, base) {
		return true
	}
	return scriptTitle != "" && strings.Contains(boardTitle, scriptTitle)
}

// storyboardTarget returns the script b is indexed under, or "".
func (x *contentIndex) storyboardTarget(b model.Storyboard) string {
	if ref := b.ScriptRef(); ref != "" {
		return ref
	}
	for _, s := range x.scripts.ByOwner(b.ProjectID) {
		if titlesMatch(b.Title, s.Title) {
			return s.ID
		}
	}
	return ""
}

func (x *contentIndex) linkStoryboard(b model.Storyboard) {
	target := x.storyboardTarget(b)
	prev := x.boardScript[b.ID]
	if target == prev {
		return
	}
	x.scriptStoryboards.Move(b.ID, prev, target)
	if target == "" {
		delete(x.boardScript, b.ID)
		return
	}
	x.boardScript[b.ID] = target
}

// relinkStoryboards re-evaluates title-matched storyboards of a project, plus
// those explicitly pointing at scriptID.
func (x *contentIndex) relinkStoryboards(pid, scriptID string) {
	for _, b := range x.storyboards.ByOwner(pid) {
		ref := b.ScriptRef()
		if ref == "" || (scriptID != "" && ref == scriptID) {
			x.linkStoryboard(b)
		}
	}
}

func (x *contentIndex) putStory(s model.Story) {
	x.stories.Put(s)
	for _, c := range x.characters[s.ProjectID] {
		x.characterStories.Link(c, s.ID)
	}
}

// dropStory removes a story and orphans its scripts. It returns the scripts
// whose StoryID was cleared.
func (x *contentIndex) dropStory(s model.Story) []string {
	x.stories.Delete(s.ID)
	for _, c := range x.characters[s.ProjectID] {
		x.characterStories.Unlink(c, s.ID)
	}
	orphaned := x.storyScripts.Children(s.ID)
	for _, id := range orphaned {
		if sc, ok := x.scripts.Get(id); ok {
			sc.StoryID = nil
			x.scripts.Put(sc)
		}
	}
	x.storyScripts.RemoveParent(s.ID)
	return orphaned
}

func (x *contentIndex) putScript(s model.Script) {
	prev, had := x.scripts.Get(s.ID)
	x.scripts.Put(s)
	if had {
		x.storyScripts.Move(s.ID, prev.StoryRef(), s.StoryRef())
	} else {
		x.storyScripts.Link(s.StoryRef(), s.ID)
	}
	for _, c := range x.characters[s.ProjectID] {
		x.characterScripts.Link(c, s.ID)
	}
	if !had || prev.Title != s.Title {
		x.relinkStoryboards(s.ProjectID, s.ID)
	}
}

// dropScript removes a script together with its storyboard list.
// Title-matched storyboards may then match another script.
func (x *contentIndex) dropScript(s model.Script) {
	x.scripts.Delete(s.ID)
	x.storyScripts.Unlink(s.StoryRef(), s.ID)
	for _, c := range x.characters[s.ProjectID] {
		x.characterScripts.Unlink(c, s.ID)
	}
	for _, b := range x.scriptStoryboards.Children(s.ID) {
		delete(x.boardScript, b)
	}
	x.scriptStoryboards.RemoveParent(s.ID)
	x.relinkStoryboards(s.ProjectID, "")
}

func (x *contentIndex) putStoryboard(b model.Storyboard) {
	x.storyboards.Put(b)
	x.linkStoryboard(b)
}

func (x *contentIndex) dropStoryboard(b model.Storyboard) {
	if sid, ok := x.boardScript[b.ID]; ok {
		x.scriptStoryboards.Unlink(sid, b.ID)
		delete(x.boardScript, b.ID)
	}
	x.storyboards.Delete(b.ID)
}

// requireProject loads projectID or returns why it could not.
func (r *ContentRepository) requireProject(ctx context.Context, projectID string) error {
	ok, err := r.ensureProject(ctx, projectID)
	if ok {
		return nil
	}
	if err != nil {
		return err
	}
	return errors.ErrProjectNotFound(projectID)
}

func upsertByID[T any](items []T, v T, idOf func(T) string) []T {
	id := idOf(v)
	for i := range items {
		if idOf(items[i]) == id {
			items[i] = v
			return items
		}
	}
	return append(items, v)
}

func removeByID[T any](items []T, id string, idOf func(T) string) []T {
	return slices.DeleteFunc(items, func(v T) bool { return idOf(v) == id })
}

// GetStories returns a project's stories in insertion order.
func (r *ContentRepository) GetStories(ctx context.Context, projectID string) ([]model.Story, error) {
	ok, err := r.ensureProject(ctx, projectID)
	if !ok {
		return []model.Story{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stories.ByOwner(projectID), nil
}

// GetStory returns a story by id.
func (r *ContentRepository) GetStory(ctx context.Context, id string) (model.Story, bool, error) {
	if err := r.ensureWarm(ctx); err != nil {
		return model.Story{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stories.Get(id)
	return s, ok, nil
}

// CreateStory adds a story to its project.
func (r *ContentRepository) CreateStory(ctx context.Context, s model.Story) (model.Story, WriteResult) {
	if err := r.requireProject(ctx, s.ProjectID); err != nil {
		return model.Story{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	r.mu.Lock()
	r.putStory(s)
	r.mu.Unlock()

	res := r.persistFactory(ctx, s.ProjectID, func(f *factory.ProjectFactory) {
		f.Stories = upsertByID(f.Stories, s.Clone(), storyID)
	})
	r.events.ContentChanged(s.ProjectID, string(model.KindStory), s.ID, "create")
	return s.Clone(), res
}

// UpdateStory replaces a known story. It stays in its project.
func (r *ContentRepository) UpdateStory(ctx context.Context, s model.Story) (model.Story, WriteResult) {
	prev, ok, err := r.GetStory(ctx, s.ID)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound(string(model.KindStory), s.ID)
		}
		return model.Story{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	s.ProjectID = prev.ProjectID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = prev.CreatedAt
	}
	s.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.putStory(s)
	r.mu.Unlock()

	res := r.persistFactory(ctx, s.ProjectID, func(f *factory.ProjectFactory) {
		f.Stories = upsertByID(f.Stories, s.Clone(), storyID)
	})
	r.events.ContentChanged(s.ProjectID, string(model.KindStory), s.ID, "update")
	return s.Clone(), res
}

// DeleteStory removes a story. Its scripts are kept as orphans.
func (r *ContentRepository) DeleteStory(ctx context.Context, id string) WriteResult {
	s, ok, err := r.GetStory(ctx, id)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound(string(model.KindStory), id)
		}
		return notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	orphaned := r.dropStory(s)
	r.mu.Unlock()

	res := r.persistFactory(ctx, s.ProjectID, func(f *factory.ProjectFactory) {
		f.Stories = removeByID(f.Stories, id, storyID)
		for i := range f.Scripts {
			if f.Scripts[i].StoryRef() == id {
				f.Scripts[i].StoryID = nil
			}
		}
	})
	r.events.ContentChanged(s.ProjectID, string(model.KindStory), id, "delete")
	for _, sid := range orphaned {
		r.events.ContentChanged(s.ProjectID, string(model.KindScript), sid, "update")
	}
	return res
}

// GetScripts returns a project's scripts in insertion order.
func (r *ContentRepository) GetScripts(ctx context.Context, projectID string) ([]model.Script, error) {
	ok, err := r.ensureProject(ctx, projectID)
	if !ok {
		return []model.Script{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scripts.ByOwner(projectID), nil
}

// GetScript returns a script by id.
func (r *ContentRepository) GetScript(ctx context.Context, id string) (model.Script, bool, error) {
	if err := r.ensureWarm(ctx); err != nil {
		return model.Script{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts.Get(id)
	return s, ok, nil
}

// GetScriptsForStory returns the scripts whose StoryID is storyID.
func (r *ContentRepository) GetScriptsForStory(ctx context.Context, storyID string) ([]model.Script, error) {
	if err := r.ensureWarm(ctx); err != nil {
		return []model.Script{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.storyScripts.Children(storyID)
	out := make([]model.Script, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.scripts.Get(id); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// CreateScript adds a script. A StoryID naming an unknown story is kept.
func (r *ContentRepository) CreateScript(ctx context.Context, s model.Script) (model.Script, WriteResult) {
	if err := r.requireProject(ctx, s.ProjectID); err != nil {
		return model.Script{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	r.mu.Lock()
	r.putScript(s)
	r.mu.Unlock()

	res := r.persistFactory(ctx, s.ProjectID, func(f *factory.ProjectFactory) {
		f.Scripts = upsertByID(f.Scripts, s.Clone(), scriptID)
	})
	r.events.ContentChanged(s.ProjectID, string(model.KindScript), s.ID, "create")
	return s.Clone(), res
}

// UpdateScript replaces a known script and bumps its version. Changing
// StoryID moves it between story entries.
func (r *ContentRepository) UpdateScript(ctx context.Context, s model.Script) (model.Script, WriteResult) {
	prev, ok, err := r.GetScript(ctx, s.ID)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound(string(model.KindScript), s.ID)
		}
		return model.Script{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	s.ProjectID = prev.ProjectID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = prev.CreatedAt
	}
	s.Version = prev.Version + 1
	s.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.putScript(s)
	r.mu.Unlock()

	res := r.persistFactory(ctx, s.ProjectID, func(f *factory.ProjectFactory) {
		f.Scripts = upsertByID(f.Scripts, s.Clone(), scriptID)
	})
	r.events.ContentChanged(s.ProjectID, string(model.KindScript), s.ID, "update")
	return s.Clone(), res
}

// DeleteScript removes a script and its storyboard list. The storyboards
// themselves stay.
func (r *ContentRepository) DeleteScript(ctx context.Context, id string) WriteResult {
	s, ok, err := r.GetScript(ctx, id)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound(string(model.KindScript), id)
		}
		return notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.dropScript(s)
	r.mu.Unlock()

	res := r.persistFactory(ctx, s.ProjectID, func(f *factory.ProjectFactory) {
		f.Scripts = removeByID(f.Scripts, id, scriptID)
	})
	r.events.ContentChanged(s.ProjectID, string(model.KindScript), id, "delete")
	return res
}

// GetStoryboards returns a project's storyboards in insertion order.
func (r *ContentRepository) GetStoryboards(ctx context.Context, projectID string) ([]model.Storyboard, error) {
	ok, err := r.ensureProject(ctx, projectID)
	if !ok {
		return []model.Storyboard{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.storyboards.ByOwner(projectID), nil
}

// GetStoryboard returns a storyboard by id.
func (r *ContentRepository) GetStoryboard(ctx context.Context, id string) (model.Storyboard, bool, error) {
	if err := r.ensureWarm(ctx); err != nil {
		return model.Storyboard{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.storyboards.Get(id)
	return b, ok, nil
}

// GetStoryboardsForScript returns the storyboards indexed under scriptID.
func (r *ContentRepository) GetStoryboardsForScript(ctx context.Context, scriptID string) ([]model.Storyboard, error) {
	if err := r.ensureWarm(ctx); err != nil {
		return []model.Storyboard{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.storyboardsFor(scriptID), nil
}

func (x *contentIndex) storyboardsFor(scriptID string) []model.Storyboard {
	ids := x.scriptStoryboards.Children(scriptID)
	out := make([]model.Storyboard, 0, len(ids))
	for _, id := range ids {
		if b, ok := x.storyboards.Get(id); ok {
			out = append(out, b)
		}
	}
	return out
}

// CreateStoryboard adds a storyboard.
func (r *ContentRepository) CreateStoryboard(ctx context.Context, b model.Storyboard) (model.Storyboard, WriteResult) {
	if err := r.requireProject(ctx, b.ProjectID); err != nil {
		return model.Storyboard{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	r.mu.Lock()
	r.putStoryboard(b)
	r.mu.Unlock()

	res := r.persistFactory(ctx, b.ProjectID, func(f *factory.ProjectFactory) {
		f.Storyboards = upsertByID(f.Storyboards, b.Clone(), storyboardID)
	})
	r.events.ContentChanged(b.ProjectID, string(model.KindStoryboard), b.ID, "create")
	return b.Clone(), res
}

// UpdateStoryboard replaces a known storyboard and re-evaluates its script link.
func (r *ContentRepository) UpdateStoryboard(ctx context.Context, b model.Storyboard) (model.Storyboard, WriteResult) {
	prev, ok, err := r.GetStoryboard(ctx, b.ID)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound(string(model.KindStoryboard), b.ID)
		}
		return model.Storyboard{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	b.ProjectID = prev.ProjectID
	if b.CreatedAt.IsZero() {
		b.CreatedAt = prev.CreatedAt
	}
	b.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.putStoryboard(b)
	r.mu.Unlock()

	res := r.persistFactory(ctx, b.ProjectID, func(f *factory.ProjectFactory) {
		f.Storyboards = upsertByID(f.Storyboards, b.Clone(), storyboardID)
	})
	r.events.ContentChanged(b.ProjectID, string(model.KindStoryboard), b.ID, "update")
	return b.Clone(), res
}

// DeleteStoryboard removes a storyboard.
func (r *ContentRepository) DeleteStoryboard(ctx context.Context, id string) WriteResult {
	b, ok, err := r.GetStoryboard(ctx, id)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound(string(model.KindStoryboard), id)
		}
		return notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.dropStoryboard(b)
	r.mu.Unlock()

	res := r.persistFactory(ctx, b.ProjectID, func(f *factory.ProjectFactory) {
		f.Storyboards = removeByID(f.Storyboards, id, storyboardID)
	})
	r.events.ContentChanged(b.ProjectID, string(model.KindStoryboard), id, "delete")
	return res
}

// ObserveStories streams a project's stories after each content change.
func (r *ContentRepository) ObserveStories(ctx context.Context, projectID string) <-chan []model.Story {
	return observe(ctx, r.pub, []string{events.ContentTopic(projectID)}, func(ctx context.Context) []model.Story {
		out, err := r.GetStories(ctx, projectID)
		if err != nil {
			r.logger.Warn("observe stories failed", "project_id", projectID, "error", err)
		}
		return out
	})
}

// ObserveScripts streams a project's scripts after each content change.
func (r *ContentRepository) ObserveScripts(ctx context.Context, projectID string) <-chan []model.Script {
	return observe(ctx, r.pub, []string{events.ContentTopic(projectID)}, func(ctx context.Context) []model.Script {
		out, err := r.GetScripts(ctx, projectID)
		if err != nil {
			r.logger.Warn("observe scripts failed", "project_id", projectID, "error", err)
		}
		return out
	})
}

// ObserveStoryboards streams a project's storyboards after each content change.
func (r *ContentRepository) ObserveStoryboards(ctx context.Context, projectID string) <-chan []model.Storyboard {
	return observe(ctx, r.pub, []string{events.ContentTopic(projectID)}, func(ctx context.Context) []model.Storyboard {
		out, err := r.GetStoryboards(ctx, projectID)
		if err != nil {
			r.logger.Warn("observe storyboards failed", "project_id", projectID, "error", err)
		}
		return out
	})
}
