package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
	"github.com/randalmurphal/storyforge/internal/storage"
)

func exportFixture(t *testing.T) *storage.DatabaseStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewTestStore(t)

	scriptID := "sc1"
	full := factory.NewEmpty(model.Project{ID: "p1", Title: "Harbor Lights", Type: model.ProjectTypeFilm})
	full.Characters = []model.Character{{ID: "c1", ProjectID: "p1", Name: "Mara"}}
	full.Stories = []model.Story{{ID: "st1", ProjectID: "p1", Title: "Arrival"}}
	full.Scripts = []model.Script{{ID: scriptID, ProjectID: "p1", Title: "Arrival", Content: "MARA\nHello."}}
	full.Storyboards = []model.Storyboard{{ID: "b1", ProjectID: "p1", ScriptID: &scriptID, Title: "Arrival - Storyboard"}}
	full.Bible = &model.ProjectBible{ID: "bible1", ProjectID: "p1", Tone: "quiet"}
	require.NoError(t, store.Save(ctx, full, full.Type()))

	sample := factory.NewSample(model.Project{ID: "p2", Title: "Demo Reel", Type: model.ProjectTypeSeries}, "bundled")
	require.NoError(t, store.Save(ctx, sample, sample.Type()))
	return store
}

func TestExportImport_RoundTrip(t *testing.T) {
	for name, archive := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := exportFixture(t)

			report, err := Export(ctx, archive, src, nil)
			require.NoError(t, err)
			require.NoError(t, report.Err())
			assert.ElementsMatch(t, []string{"p1", "p2"}, report.Done)

			keys, err := archive.List(ctx, "projects/p1/")
			require.NoError(t, err)
			assert.Contains(t, keys, "projects/p1/basic.json")
			assert.Contains(t, keys, "projects/p1/storyboards.json")
			assert.NotContains(t, keys, "projects/p1/publishing.json", "empty components are not written")

			dst := storage.NewTestStore(t)
			report, err = Import(ctx, archive, dst, "")
			require.NoError(t, err)
			require.NoError(t, report.Err())
			assert.ElementsMatch(t, []string{"p1", "p2"}, report.Done)

			got, err := dst.GetByProjectID(ctx, "p1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Harbor Lights", got.Project.Title)
			require.Len(t, got.Storyboards, 1)
			assert.Equal(t, "sc1", got.Storyboards[0].ScriptRef())
			require.NotNil(t, got.Bible)
			assert.Equal(t, "quiet", got.Bible.Tone)

			typ, ok, err := dst.TypeOf(ctx, "p2")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, factory.TypeSample, typ)
		})
	}
}

func TestExport_Selected(t *testing.T) {
	ctx := context.Background()
	src := exportFixture(t)
	archive := NewMemoryStore()

	report, err := Export(ctx, archive, src, []string{"p2", "ghost", "bad/id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, report.Done)
	require.Len(t, report.Failed, 2)
	assert.True(t, storyerrors.HasCode(report.Failed["ghost"], storyerrors.CodeProjectNotFound))
	assert.True(t, storyerrors.HasCode(report.Failed["bad/id"], storyerrors.CodeArchiveFailed))
	assert.Error(t, report.Err())

	keys, err := archive.List(ctx, Prefix)
	require.NoError(t, err)
	for _, k := range keys {
		assert.Contains(t, k, "projects/p2/")
	}
}

func TestExport_ClearsEmptiedComponents(t *testing.T) {
	ctx := context.Background()
	src := exportFixture(t)
	archive := NewMemoryStore()

	_, err := Export(ctx, archive, src, []string{"p1"})
	require.NoError(t, err)

	f, err := src.GetByProjectID(ctx, "p1")
	require.NoError(t, err)
	f.Characters = nil
	require.NoError(t, src.Save(ctx, f, f.Type()))

	_, err = Export(ctx, archive, src, []string{"p1"})
	require.NoError(t, err)
	_, err = archive.Get(ctx, EntryKey("p1", factory.ComponentCharacters))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImport_Pattern(t *testing.T) {
	ctx := context.Background()
	archive := NewMemoryStore()
	_, err := Export(ctx, archive, exportFixture(t), nil)
	require.NoError(t, err)

	tests := []struct {
		pattern string
		want    []string
	}{
		{"", []string{"p1", "p2"}},
		{"projects/**", []string{"p1", "p2"}},
		{"projects/p1/basic.json", []string{"p1"}},
		{"projects/{p2,p9}/*.json", []string{"p2"}},
		{"elsewhere/**", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			report, err := Import(ctx, archive, storage.NewTestStore(t), tt.pattern)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, report.Done)
		})
	}

	_, err = Import(ctx, archive, storage.NewTestStore(t), "projects/[")
	assert.True(t, storyerrors.HasCode(err, storyerrors.CodeConfigInvalid))
}

func TestImport_CorruptComponent(t *testing.T) {
	ctx := context.Background()
	archive := NewMemoryStore()
	_, err := Export(ctx, archive, exportFixture(t), nil)
	require.NoError(t, err)
	require.NoError(t, archive.Put(ctx, EntryKey("p1", factory.ComponentStories), []byte(`{not json`)))

	dst := storage.NewTestStore(t)
	report, err := Import(ctx, archive, dst, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, report.Done)
	require.Contains(t, report.Failed, "p1")
	assert.True(t, storyerrors.HasCode(report.Failed["p1"], storyerrors.CodeDeserializationFailed))

	got, err := dst.GetByProjectID(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got, "a corrupt export is not saved")
}

func TestImport_InvalidBasicEntry(t *testing.T) {
	ctx := context.Background()
	archive := NewMemoryStore()
	require.NoError(t, archive.Put(ctx, "projects/p3/basic.json", []byte(`nope`)))

	report, err := Import(ctx, archive, storage.NewTestStore(t), "")
	require.NoError(t, err)
	assert.Empty(t, report.Done)
	assert.True(t, storyerrors.HasCode(report.Failed["p3"], storyerrors.CodeArchiveFailed))
}
