package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
	"github.com/randalmurphal/storyforge/internal/remote"
	"github.com/randalmurphal/storyforge/internal/storage"
)

// A character whose store write failed is still readable in the session.
func TestCharacterRepository_CreateSurvivesPersistFailure(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewTestStore(t)
	seedFactory(t, inner, factory.NewEmpty(testProject("p1", "Fragile")))
	store := storage.NewFailingStore(inner)
	repo := NewCharacterRepository(storeDeps(store))

	store.FailWrites(true)
	c, res := repo.Create(ctx, model.Character{ProjectID: "p1", Name: "Ines", Role: "lead"})
	assert.True(t, res.Applied)
	assert.False(t, res.Persisted)
	require.Error(t, res.Err)
	assert.True(t, errors.HasCode(res.Err, errors.CodeWriteFailed))
	assert.ErrorIs(t, res.Err, storage.ErrInjected)

	got, ok, err := repo.GetCharacter(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ines", got.Name)

	chars, err := repo.GetCharacters(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, chars, 1)

	f, err := inner.GetByProjectID(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, f.Characters)
}

func TestCharacterRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	store := storage.NewTestStore(t)
	seedFactory(t, store, factory.NewEmpty(testProject("p1", "Cast")))
	repo := NewCharacterRepository(storeDeps(store))

	c, res := repo.Create(ctx, model.Character{ProjectID: "p1", Name: "Otto", Traits: []string{"stubborn"}})
	require.True(t, res.OK(), "%v", res.Err)
	require.NotEmpty(t, c.ID)

	c.Role = "mentor"
	c.ProjectID = "elsewhere"
	updated, res := repo.Update(ctx, c)
	require.True(t, res.OK())
	assert.Equal(t, "p1", updated.ProjectID, "characters stay in their project")

	f, err := store.GetByProjectID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, f.Characters, 1)
	assert.Equal(t, "mentor", f.Characters[0].Role)

	require.True(t, repo.Delete(ctx, c.ID).OK())
	_, ok, err := repo.GetCharacter(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	res = repo.Delete(ctx, c.ID)
	assert.False(t, res.Applied)
	assert.True(t, errors.HasCode(res.Err, errors.CodeEntityNotFound))

	_, res = repo.Create(ctx, model.Character{ProjectID: "ghost", Name: "Nobody"})
	assert.False(t, res.Applied)
	assert.True(t, errors.HasCode(res.Err, errors.CodeProjectNotFound))
}

func TestCharacterRepository_Search(t *testing.T) {
	ctx := context.Background()
	store := storage.NewTestStore(t)
	f := factory.NewEmpty(testProject("p1", "Cast"))
	f.Characters = []model.Character{
		{ID: "a", Name: "Marlow", Role: "detective"},
		{ID: "b", Name: "Vesna", Archetype: "Trickster"},
		{ID: "c", Name: "Ruth", Description: "a retired detective"},
	}
	seedFactory(t, store, f)
	repo := NewCharacterRepository(storeDeps(store))

	tests := []struct {
		query string
		want  []string
	}{
		{"detective", []string{"a", "c"}},
		{"TRICK", []string{"b"}},
		{"ruth", []string{"c"}},
		{"nobody", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := repo.Search(ctx, tt.query)
			require.NoError(t, err)
			ids := []string{}
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestCharacterRepository_RemoteFirst(t *testing.T) {
	ctx := context.Background()
	store := storage.NewTestStore(t)
	seedFactory(t, store, factory.NewEmpty(testProject("p1", "Synced")))
	src := remote.NewMemorySource()
	src.PutProject(remote.ProjectDetails{
		Project:    testProject("p1", "Synced"),
		Characters: []model.Character{{ID: "r1", Name: "Remote Rita"}},
	})
	repo := NewCharacterRepository(remoteDeps(store, src))

	chars, err := repo.GetCharacters(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "p1", chars[0].ProjectID)

	f, err := store.GetByProjectID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, f.Characters, 1, "remote list is written through")

	// Unchanged remote: served from cache after a conditional request.
	chars, err = repo.GetCharacters(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, chars, 1)
	assert.Equal(t, 2, src.Calls(remote.OpCharacters))

	src.SetCharacters("p1", []model.Character{{ID: "r1", Name: "Remote Rita"}, {ID: "r2", Name: "Remote Rex"}})
	chars, err = repo.GetCharacters(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, chars, 2)
}

func TestCharacterRepository_RemoteFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewTestStore(t)
	f := factory.NewEmpty(testProject("p1", "Local"))
	f.Characters = []model.Character{{ID: "l1", Name: "Local Lou"}}
	seedFactory(t, store, f)
	src := remote.NewMemorySource()
	src.Fail(remote.OpCharacters, fmt.Errorf("timeout"))
	repo := NewCharacterRepository(remoteDeps(store, src))

	chars, err := repo.GetCharacters(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "l1", chars[0].ID)

	chars, err = repo.GetCharacters(ctx, "ghost")
	assert.Empty(t, chars)
	assert.True(t, errors.HasCode(err, errors.CodeRemoteUnavailable))
}

func TestCharacterRepository_Observe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := storage.NewTestStore(t)
	seedFactory(t, store, factory.NewEmpty(testProject("p1", "Watch")))
	repo := NewCharacterRepository(storeDeps(store))

	ch := repo.Observe(ctx, "p1")
	assert.Empty(t, receiveValue(t, ch))

	_, res := repo.Create(ctx, model.Character{ID: "x", ProjectID: "p1", Name: "Xan"})
	require.True(t, res.OK())
	got := receiveValue(t, ch)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].ID)
}
