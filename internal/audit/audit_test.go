package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries []*Entry
	failing bool
}

func (f *fakeStore) CreateAuditEntry(ctx context.Context, e *Entry) error {
	if f.failing {
		return assert.AnError
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) GetAuditEntries(ctx context.Context, limit int) ([]Entry, error) {
	out := make([]Entry, 0, len(f.entries))
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *f.entries[i])
	}
	return out, nil
}

func TestRecordAppendsEntry(t *testing.T) {
	store := &fakeStore{}
	logger := New(store)

	logger.Record(context.Background(), "alice", ActionProjectCreate, "project", "1", nil)

	require.Len(t, store.entries, 1)
	assert.Equal(t, ActionProjectCreate, store.entries[0].Action)
	assert.Equal(t, "alice", store.entries[0].Actor)
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	store := &fakeStore{failing: true}
	logger := New(store)

	assert.NotPanics(t, func() {
		logger.Record(context.Background(), "alice", ActionBuildTrigger, "build", "42", nil)
	})
}

func TestRecordSampledAddsSamplingMeta(t *testing.T) {
	store := &fakeStore{}
	logger := New(store)

	for i := 0; i < 50; i++ {
		logger.RecordSampled(context.Background(), "system", ActionContainerStart, "container", "1", nil, 1)
	}

	require.Len(t, store.entries, 50)
	assert.Equal(t, true, store.entries[0].Meta["sampled"])
}

func TestGetRecentClampsLimit(t *testing.T) {
	store := &fakeStore{}
	logger := New(store)
	for i := 0; i < 5; i++ {
		logger.Record(context.Background(), "system", ActionRollback, "project", "1", nil)
	}

	got, err := logger.GetRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestWithActorAndGetActorFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "system", GetActorFromContext(ctx))

	ctx = WithActor(ctx, "bob")
	assert.Equal(t, "bob", GetActorFromContext(ctx))
}

func TestRecordProjectBuildContainerActionHelpers(t *testing.T) {
	store := &fakeStore{}
	logger := New(store)

	logger.RecordProjectAction(context.Background(), "alice", ActionProjectDelete, "7", nil)
	logger.RecordBuildAction(context.Background(), "alice", ActionBuildTrigger, "8", nil)
	logger.RecordContainerAction(context.Background(), "alice", ActionContainerStop, "9", nil)

	require.Len(t, store.entries, 3)
	assert.Equal(t, "project", store.entries[0].TargetType)
	assert.Equal(t, "build", store.entries[1].TargetType)
	assert.Equal(t, "container", store.entries[2].TargetType)
}
