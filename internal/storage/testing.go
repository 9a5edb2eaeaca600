package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
)

// NewTestStore creates an in-memory database store that is closed when the
// test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    store := storage.NewTestStore(t)
//	    // use store...
//	}
func NewTestStore(t testing.TB, opts ...Option) *DatabaseStore {
	t.Helper()

	store, err := NewInMemoryStore(context.Background(), opts...)
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// ErrInjected is returned by a FailingStore whose writes are failing.
var ErrInjected = errors.New("injected store failure")

// FailingStore wraps a Store and fails every write while FailWrites is on.
// Reads always pass through.
type FailingStore struct {
	Store

	mu         sync.Mutex
	failWrites bool
	failReads  bool
	writes     int
}

// NewFailingStore wraps inner.
func NewFailingStore(inner Store) *FailingStore {
	return &FailingStore{Store: inner}
}

// FailWrites turns write failures on or off.
func (f *FailingStore) FailWrites(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = on
}

// FailReads turns point-lookup and scan failures on or off.
func (f *FailingStore) FailReads(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = on
}

// Writes returns the number of write attempts, failed or not.
func (f *FailingStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FailingStore) write() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failWrites {
		return ErrInjected
	}
	return nil
}

func (f *FailingStore) read() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return ErrInjected
	}
	return nil
}

func (f *FailingStore) Save(ctx context.Context, pf *factory.ProjectFactory, t factory.Type) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Store.Save(ctx, pf, t)
}

func (f *FailingStore) Delete(ctx context.Context, id string) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Store.Delete(ctx, id)
}

func (f *FailingStore) DeleteAll(ctx context.Context) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Store.DeleteAll(ctx)
}

func (f *FailingStore) GetByProjectID(ctx context.Context, id string) (*factory.ProjectFactory, error) {
	if err := f.read(); err != nil {
		return nil, err
	}
	return f.Store.GetByProjectID(ctx, id)
}

func (f *FailingStore) TypeOf(ctx context.Context, id string) (factory.Type, bool, error) {
	if err := f.read(); err != nil {
		return "", false, err
	}
	return f.Store.TypeOf(ctx, id)
}

func (f *FailingStore) GetAll(ctx context.Context) ([]*factory.ProjectFactory, error) {
	if err := f.read(); err != nil {
		return nil, err
	}
	return f.Store.GetAll(ctx)
}

func (f *FailingStore) GetAllBasicInfo(ctx context.Context) ([]BasicInfo, error) {
	if err := f.read(); err != nil {
		return nil, err
	}
	return f.Store.GetAllBasicInfo(ctx)
}

func (f *FailingStore) SaveAnalytics(ctx context.Context, id string, a model.DistributionAnalytics) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Store.SaveAnalytics(ctx, id, a)
}

func (f *FailingStore) SaveConnection(ctx context.Context, c model.PlatformConnection) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Store.SaveConnection(ctx, c)
}

func (f *FailingStore) DeleteConnection(ctx context.Context, projectID string, p model.Platform) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Store.DeleteConnection(ctx, projectID, p)
}

func (f *FailingStore) SaveScheduledPost(ctx context.Context, p model.ScheduledPost) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Store.SaveScheduledPost(ctx, p)
}

func (f *FailingStore) SetScheduledPostStatus(ctx context.Context, id string, s model.ScheduleStatus) (bool, error) {
	if err := f.write(); err != nil {
		return false, err
	}
	return f.Store.SetScheduledPostStatus(ctx, id, s)
}

var _ Store = (*FailingStore)(nil)
