package repository

import (
	"context"
	"testing"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceStore(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(setupDB(t), SQLite)

	provider := "minio-east"
	external, err := store.Create(ctx, &interfaces.BucketInstance{
		Name:             "ext",
		RootPath:         "/srv/buckets/0000aaaa",
		BucketType:       interfaces.BucketTypeExternal,
		ExternalProvider: &provider,
		MountPermissions: "team:mount",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), external.ID)

	standard, err := store.Create(ctx, &interfaces.BucketInstance{
		Name:       "logs",
		RootPath:   "/srv/buckets/0000bbbb",
		BucketType: interfaces.BucketTypeStandard,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), standard.ID)

	got, err := store.Get(ctx, external.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExternalProvider)
	assert.Equal(t, "minio-east", *got.ExternalProvider)
	assert.True(t, external.SameAs(got))

	got, err = store.GetByRootPath(ctx, "/srv/buckets/0000bbbb")
	require.NoError(t, err)
	assert.Nil(t, got.ExternalProvider)
	assert.Equal(t, standard.ID, got.ID)

	_, err = store.Create(ctx, &interfaces.BucketInstance{
		Name:       "other",
		RootPath:   "/srv/buckets/0000bbbb",
		BucketType: interfaces.BucketTypeStandard,
	})
	assert.ErrorIs(t, err, interfaces.ErrDuplicateInstance)

	_, err = store.Get(ctx, 99)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ext", all[0].Name)
	assert.Equal(t, "logs", all[1].Name)
}
