package repository

import (
	"context"
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
	"github.com/randalmurphal/storyforge/internal/remote"
)

// CharacterRepository caches character profiles per project. Online, the
// remote's character list is consulted on every GetCharacters; an unchanged
// list costs one conditional request.
type CharacterRepository struct {
	*base

	writeMu sync.Mutex

	mu         sync.RWMutex
	characters *index.Table[model.Character]
	warm       bool

	group singleflight.Group

	onChange []func(projectID string, ids []string)
}

// NewCharacterRepository creates a character repository.
func NewCharacterRepository(d Deps) *CharacterRepository {
	return &CharacterRepository{
		base: newBase("character", d),
		characters: index.NewTable(
			func(c model.Character) string { return c.ID },
			func(c model.Character) string { return c.ProjectID },
		),
	}
}

// OnCharactersChanged registers fn to receive a project's character ids
// after a create, a delete or a remote refresh changed them. Register hooks
// before the repository is used.
func (r *CharacterRepository) OnCharactersChanged(fn func(projectID string, ids []string)) {
	r.onChange = append(r.onChange, fn)
}

func (r *CharacterRepository) notifyChanged(projectID string) {
	if len(r.onChange) == 0 {
		return
	}
	r.mu.RLock()
	ids := r.characters.IDsByOwner(projectID)
	r.mu.RUnlock()
	for _, fn := range r.onChange {
		fn(projectID, ids)
	}
}

// dropProject forgets a deleted project's characters.
func (r *CharacterRepository) dropProject(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.characters.DropOwner(projectID)
}

func (r *CharacterRepository) replace(projectID string, chars []model.Character, onlyIfAbsent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if onlyIfAbsent && r.characters.HasOwner(projectID) {
		return
	}
	owned := make([]model.Character, len(chars))
	for i, c := range chars {
		c.ProjectID = projectID
		owned[i] = c
	}
	r.characters.ReplaceOwner(projectID, owned)
}

// load brings projectID's characters into the cache, asking the remote first
// when online. It reports whether the project is known anywhere.
func (r *CharacterRepository) load(ctx context.Context, projectID string) (bool, error) {
	var remoteErr error
	if r.online() {
		rctx, cancel := r.remoteCtx(ctx)
		res, err := r.remote.GetCharacters(rctx, projectID)
		cancel()
		r.recordRemote(remote.OpCharacters, err == nil && res.IsNotModified(), err)
		switch {
		case remote.IsNotFound(err):
			// Local-only projects are unknown to the remote.
		case err != nil:
			remoteErr = err
		case !res.IsNotModified():
			r.replace(projectID, res.Value, false)
			r.saveCharacters(ctx, projectID, res.Value)
			r.notifyChanged(projectID)
			return true, nil
		}
	}

	r.mu.RLock()
	cached := r.characters.HasOwner(projectID)
	r.mu.RUnlock()
	if cached {
		r.metrics.CacheLookup(r.name, true)
		return true, nil
	}
	r.metrics.CacheLookup(r.name, false)

	v, err, _ := r.group.Do(projectID, func() (any, error) {
		f, err := r.loadStored(ctx, projectID)
		if err != nil || f == nil {
			return false, err
		}
		r.replace(projectID, f.Characters, true)
		return true, nil
	})
	if ok, _ := v.(bool); ok {
		return true, nil
	}
	if remoteErr != nil {
		return false, remoteErr
	}
	return false, err
}

// saveCharacters writes a remote character list through to a stored
// factory. Projects the store has never seen are skipped.
func (r *CharacterRepository) saveCharacters(ctx context.Context, projectID string, chars []model.Character) {
	unlock := r.locks.lock(projectID)
	defer unlock()

	sctx, cancel := r.storeCtx(ctx)
	defer cancel()

	f, err := r.store.GetByProjectID(sctx, projectID)
	if err != nil || f == nil {
		return
	}
	ft, ok, err := r.store.TypeOf(sctx, projectID)
	if err != nil || !ok {
		ft = factory.TypeAPI
	}
	f.Characters = make([]model.Character, len(chars))
	for i, c := range chars {
		c.ProjectID = projectID
		f.Characters[i] = c.Clone()
	}
	if err := r.store.Save(sctx, f, ft); err != nil {
		r.logger.Warn("persist failed, keeping in-memory state", "project_id", projectID, "error", err)
		r.metrics.PersistFailure(r.name)
	}
}

func (r *CharacterRepository) ensureWarm(ctx context.Context) error {
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
			r.replace(f.ProjectID, f.Characters, true)
		}
		r.mu.Lock()
		r.warm = true
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// GetCharacters returns a project's characters. The error is set only when
// the remote failed and no local copy exists.
func (r *CharacterRepository) GetCharacters(ctx context.Context, projectID string) ([]model.Character, error) {
	ok, err := r.load(ctx, projectID)
	if !ok {
		return []model.Character{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.characters.ByOwner(projectID), nil
}

// GetCharacter returns a character by id from the local tiers.
func (r *CharacterRepository) GetCharacter(ctx context.Context, id string) (model.Character, bool, error) {
	r.mu.RLock()
	c, ok := r.characters.Get(id)
	r.mu.RUnlock()
	if ok {
		return c, true, nil
	}
	if err := r.ensureWarm(ctx); err != nil {
		return model.Character{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok = r.characters.Get(id)
	return c, ok, nil
}

// Search matches query case-insensitively against name, role, archetype
// and description across every known project.
func (r *CharacterRepository) Search(ctx context.Context, query string) ([]model.Character, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.Character{}, nil
	}
	if err := r.ensureWarm(ctx); err != nil {
		return []model.Character{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Character{}
	for _, c := range r.characters.All() {
		for _, f := range []string{c.Name, c.Role, c.Archetype, c.Description} {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// Create adds a character to its project. The character is visible to
// readers even if the store rejects it.
func (r *CharacterRepository) Create(ctx context.Context, c model.Character) (model.Character, WriteResult) {
	ok, err := r.load(ctx, c.ProjectID)
	if !ok {
		if err == nil {
			err = errors.ErrProjectNotFound(c.ProjectID)
		}
		return model.Character{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	r.mu.Lock()
	r.characters.Put(c)
	r.mu.Unlock()

	res := r.persistFactory(ctx, c.ProjectID, func(f *factory.ProjectFactory) {
		f.Characters = upsertByID(f.Characters, c.Clone(), characterID)
	})
	r.notifyChanged(c.ProjectID)
	r.events.CharactersChanged(c.ProjectID, c.ID, "create")
	return c.Clone(), res
}

// Update replaces a known character.
func (r *CharacterRepository) Update(ctx context.Context, c model.Character) (model.Character, WriteResult) {
	prev, ok, err := r.GetCharacter(ctx, c.ID)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound("character", c.ID)
		}
		return model.Character{}, notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c.ProjectID = prev.ProjectID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = prev.CreatedAt
	}
	c.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.characters.Put(c)
	r.mu.Unlock()

	res := r.persistFactory(ctx, c.ProjectID, func(f *factory.ProjectFactory) {
		f.Characters = upsertByID(f.Characters, c.Clone(), characterID)
	})
	r.events.CharactersChanged(c.ProjectID, c.ID, "update")
	return c.Clone(), res
}

// Delete removes a character.
func (r *CharacterRepository) Delete(ctx context.Context, id string) WriteResult {
	c, ok, err := r.GetCharacter(ctx, id)
	if !ok {
		if err == nil {
			err = errors.ErrEntityNotFound("character", id)
		}
		return notApplied(err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.characters.Delete(id)
	r.mu.Unlock()

	res := r.persistFactory(ctx, c.ProjectID, func(f *factory.ProjectFactory) {
		f.Characters = removeByID(f.Characters, id, characterID)
	})
	r.notifyChanged(c.ProjectID)
	r.events.CharactersChanged(c.ProjectID, id, "delete")
	return res
}

// Observe streams a project's characters after each character change.
func (r *CharacterRepository) Observe(ctx context.Context, projectID string) <-chan []model.Character {
	return observe(ctx, r.pub, []string{events.CharactersTopic(projectID)}, func(ctx context.Context) []model.Character {
		out, err := r.GetCharacters(ctx, projectID)
		if err != nil {
			r.logger.Warn("observe characters failed", "project_id", projectID, "error", err)
		}
		return out
	})
}

func characterID(c model.Character) string { return c.ID }
