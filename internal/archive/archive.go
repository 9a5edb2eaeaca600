package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"

	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/storage"
)

const (
	// Prefix is the key prefix every exported factory lives under.
	Prefix = "projects/"
	// BasicEntry names the per-project listing entry.
	BasicEntry = "basic.json"
	// DefaultPattern matches every exported project.
	DefaultPattern = "projects/*/basic.json"
)

// Basic is the listing entry written next to a factory's components.
type Basic struct {
	ProjectID   string    `json:"projectId"`
	FactoryType string    `json:"factoryType"`
	Title       string    `json:"title"`
	ProjectType string    `json:"projectType"`
	Components  []string  `json:"components"`
	ExportedAt  time.Time `json:"exportedAt"`
}

// Report lists the projects an export or import handled.
type Report struct {
	Done   []string
	Failed map[string]error
}

// Err joins every per-project failure, or returns nil.
func (r Report) Err() error {
	var errs []error
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}

func (r *Report) fail(id string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[id] = err
}

// EntryKey returns the key of one component of a project.
func EntryKey(projectID, component string) string {
	return Prefix + projectID + "/" + component + ".json"
}

// Export writes the factories named by ids to dst. With no ids every stored
// factory is exported. A project that cannot be read or written is recorded
// in the report and the rest continue.
func Export(ctx context.Context, dst Store, src storage.FactoryStore, ids []string) (Report, error) {
	if len(ids) == 0 {
		infos, err := src.GetAllBasicInfo(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("list factories: %w", err)
		}
		for _, info := range infos {
			ids = append(ids, info.ProjectID)
		}
	}

	var report Report
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := exportOne(ctx, dst, src, id); err != nil {
			report.fail(id, err)
			continue
		}
		report.Done = append(report.Done, id)
	}
	return report, nil
}

func exportOne(ctx context.Context, dst Store, src storage.FactoryStore, id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return storyerrors.ErrArchiveFailed(Prefix + id)
	}
	f, err := src.GetByProjectID(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return storyerrors.ErrProjectNotFound(id)
	}
	blobs, err := factory.Serialize(f)
	if err != nil {
		return storyerrors.ErrArchiveFailed(Prefix + id).WithCause(err)
	}

	basic := Basic{
		ProjectID:   id,
		FactoryType: string(f.Type()),
		Title:       f.Project.Title,
		ProjectType: string(f.Project.Type),
		ExportedAt:  time.Now().UTC(),
	}
	for _, name := range factory.ComponentNames {
		blob := blobs.Get(name)
		key := EntryKey(id, name)
		if len(blob) == 0 {
			// Stale entries from an earlier export would resurrect emptied components.
			if err := dst.Delete(ctx, key); err != nil {
				return storyerrors.ErrArchiveFailed(key).WithCause(err)
			}
			continue
		}
		if err := dst.Put(ctx, key, blob); err != nil {
			return storyerrors.ErrArchiveFailed(key).WithCause(err)
		}
		basic.Components = append(basic.Components, name)
	}

	data, err := json.Marshal(basic)
	if err != nil {
		return err
	}
	key := Prefix + id + "/" + BasicEntry
	if err := dst.Put(ctx, key, data); err != nil {
		return storyerrors.ErrArchiveFailed(key).WithCause(err)
	}
	return nil
}

// Import reads every exported project whose basic.json key matches pattern
// and saves it to dst. An empty pattern means DefaultPattern. Projects whose
// components fail to decode are recorded in the report and not saved.
func Import(ctx context.Context, src Store, dst storage.FactoryStore, pattern string) (Report, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return Report{}, storyerrors.ErrConfigInvalid("pattern", fmt.Sprintf("invalid glob %q", pattern))
	}
	keys, err := src.List(ctx, Prefix)
	if err != nil {
		return Report{}, fmt.Errorf("list archive: %w", err)
	}

	var report Report
	for _, key := range keys {
		if path.Base(key) != BasicEntry {
			continue
		}
		if ok, _ := doublestar.Match(pattern, key); !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		id := path.Base(path.Dir(key))
		if err := importOne(ctx, src, dst, id, key); err != nil {
			report.fail(id, err)
			continue
		}
		report.Done = append(report.Done, id)
	}
	return report, nil
}

func importOne(ctx context.Context, src Store, dst storage.FactoryStore, id, basicKey string) error {
	basic, err := src.Get(ctx, basicKey)
	if err != nil {
		return storyerrors.ErrArchiveFailed(basicKey).WithCause(err)
	}
	if !gjson.ValidBytes(basic) {
		return storyerrors.ErrArchiveFailed(basicKey)
	}
	factoryType := factory.ParseType(gjson.GetBytes(basic, "factoryType").String())

	var blobs factory.Components
	for _, name := range factory.ComponentNames {
		key := EntryKey(id, name)
		blob, err := src.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return storyerrors.ErrArchiveFailed(key).WithCause(err)
		}
		blobs.Set(name, blob)
	}

	f, err := factory.Deserialize(id, blobs)
	if err != nil {
		failed := factory.FailedComponents(err)
		component := strings.Join(failed, ",")
		return storyerrors.ErrDeserializationFailed(id, component).WithCause(err)
	}
	return dst.Save(ctx, f, factoryType)
}
