package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "buckets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, SQLite, logger))
	return db
}

func newBucket(name string) *interfaces.Bucket {
	return &interfaces.Bucket{
		Name:        name,
		Description: "test bucket",
		BucketType:  interfaces.BucketTypeStandard,
		Cluster:     "cluster-a",
		Permissions: interfaces.Permissions{Read: "team:read", Mount: "team:mount"},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Migrate(context.Background(), db, SQLite, logger))
}

func TestBucketStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	created, err := store.Create(ctx, newBucket("logs"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, interfaces.BucketStatePending, created.State)
	assert.Empty(t, created.RootPath)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "logs", got.Name)
	assert.Equal(t, "team:read", got.Permissions.Read)
	assert.Equal(t, "team:mount", got.Permissions.Mount)
	assert.Equal(t, interfaces.BucketStatePending, got.State)
	assert.Empty(t, got.RootPath)
	assert.Empty(t, got.ExternalProvider)
	assert.Nil(t, got.InstanceID)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	byName, err := store.GetByName(ctx, "logs")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = store.Get(ctx, created.ID+100)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, err = store.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestBucketStore_DuplicateName(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	_, err := store.Create(ctx, newBucket("logs"))
	require.NoError(t, err)

	_, err = store.Create(ctx, newBucket("logs"))
	assert.ErrorIs(t, err, interfaces.ErrDuplicateName)
}

func TestBucketStore_ConcurrentCreateSameName(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	const attempts = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, newBucket("shared"))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, interfaces.ErrDuplicateName)
	}
	assert.Equal(t, 1, succeeded)

	all, err := store.List(ctx, interfaces.BucketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBucketStore_AssignRootPath(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	first, err := store.Create(ctx, newBucket("first"))
	require.NoError(t, err)
	second, err := store.Create(ctx, newBucket("second"))
	require.NoError(t, err)

	require.NoError(t, store.AssignRootPath(ctx, first.ID, "/srv/buckets/aaaaaaaa"))

	err = store.AssignRootPath(ctx, first.ID, "/srv/buckets/bbbbbbbb")
	assert.ErrorIs(t, err, interfaces.ErrRootPathAssigned)

	err = store.AssignRootPath(ctx, second.ID, "/srv/buckets/aaaaaaaa")
	assert.ErrorIs(t, err, interfaces.ErrRootPathConflict)

	err = store.AssignRootPath(ctx, 9999, "/srv/buckets/cccccccc")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "/srv/buckets/aaaaaaaa", got.RootPath)
}

func TestBucketStore_StateTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	ok, err := store.Create(ctx, newBucket("ok"))
	require.NoError(t, err)
	failed, err := store.Create(ctx, newBucket("failed"))
	require.NoError(t, err)

	require.NoError(t, store.MarkProvisioned(ctx, ok.ID, 42))
	got, err := store.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketStateProvisioned, got.State)
	require.NotNil(t, got.InstanceID)
	assert.Equal(t, int64(42), *got.InstanceID)

	// provisioned is terminal
	assert.ErrorIs(t, store.MarkProvisionFailed(ctx, ok.ID, "late"), interfaces.ErrInvalidStateTransition)
	assert.ErrorIs(t, store.MarkProvisioned(ctx, ok.ID, 43), interfaces.ErrInvalidStateTransition)
	assert.ErrorIs(t, store.ResetPending(ctx, ok.ID), interfaces.ErrInvalidStateTransition)

	require.NoError(t, store.MarkProvisionFailed(ctx, failed.ID, "intake unreachable"))
	got, err = store.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketStateProvisionFailed, got.State)
	assert.Equal(t, "intake unreachable", got.ProvisionError)

	assert.ErrorIs(t, store.MarkProvisioned(ctx, failed.ID, 1), interfaces.ErrInvalidStateTransition)

	require.NoError(t, store.ResetPending(ctx, failed.ID))
	require.NoError(t, store.MarkProvisioned(ctx, failed.ID, 7))
	got, err = store.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketStateProvisioned, got.State)
	assert.Empty(t, got.ProvisionError)

	assert.ErrorIs(t, store.MarkProvisioned(ctx, 9999, 1), interfaces.ErrNotFound)
}

func TestBucketStore_ModifyWritesMutableColumnsOnly(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	created, err := store.Create(ctx, newBucket("logs"))
	require.NoError(t, err)

	updated, err := store.Modify(ctx, created.ID, func(b *interfaces.Bucket) error {
		b.Description = "changed"
		b.Permissions.Write = "team:write"
		b.MountEnabled = true
		b.Name = "renamed"
		b.Cluster = "other"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "changed", updated.Description)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Description)
	assert.Equal(t, "team:write", got.Permissions.Write)
	assert.True(t, got.MountEnabled)
	assert.Equal(t, "logs", got.Name)
	assert.Equal(t, "cluster-a", got.Cluster)
	assert.False(t, got.ModifiedAt.Before(got.CreatedAt))
}

func TestBucketStore_ModifyAbortsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	created, err := store.Create(ctx, newBucket("logs"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Modify(ctx, created.ID, func(b *interfaces.Bucket) error {
		b.Description = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "test bucket", got.Description)

	_, err = store.Modify(ctx, 9999, func(b *interfaces.Bucket) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestBucketStore_MountObserveCheckConstraint(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	b := newBucket("both")
	b.MountEnabled = true
	b.ObserveEnabled = true
	_, err := store.Create(ctx, b)
	assert.Error(t, err)
}

func TestBucketStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		_, err := store.Create(ctx, newBucket(name))
		require.NoError(t, err)
	}
	alpha, err := store.GetByName(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, store.MarkProvisionFailed(ctx, alpha.ID, "down"))

	all, err := store.List(ctx, interfaces.BucketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "bravo", all[1].Name)
	assert.Equal(t, "charlie", all[2].Name)

	failed, err := store.List(ctx, interfaces.BucketFilter{State: interfaces.BucketStateProvisionFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "alpha", failed[0].Name)

	provisioned, err := store.List(ctx, interfaces.BucketFilter{State: interfaces.BucketStateProvisioned})
	require.NoError(t, err)
	assert.Empty(t, provisioned)
}

func TestBucketStore_ExternalProvider(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(setupDB(t), SQLite)

	b := newBucket("ext")
	b.BucketType = interfaces.BucketTypeExternal
	b.ExternalProvider = "minio-east"
	created, err := store.Create(ctx, b)
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketTypeExternal, got.BucketType)
	assert.Equal(t, "minio-east", got.ExternalProvider)
}
