package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/bucket-provisioning-backend/api/provisioner"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/ruteri/bucket-provisioning-backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T) (*Registry, *repository.BucketStore, *provisioner.MockProvisioner) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := repository.Open(ctx, repository.SQLite, filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, repository.SQLite, logger))

	store := repository.NewBucketStore(db, repository.SQLite)
	prov := &provisioner.MockProvisioner{}
	return NewRegistry(store, prov, logger), store, prov
}

// provisionsTo makes the mock behave like the real client: the root path is
// persisted before the result is returned.
func provisionsTo(store *repository.BucketStore, rootPath string, instanceID int64) func(args mock.Arguments) {
	return func(args mock.Arguments) {
		b := args.Get(1).(*interfaces.Bucket)
		if err := store.AssignRootPath(context.Background(), b.ID, rootPath); err != nil {
			panic(err)
		}
	}
}

func logsSpec() interfaces.BucketSpec {
	return interfaces.BucketSpec{
		Name:        "logs",
		Description: "application logs",
		Cluster:     "cluster-a",
		Permissions: interfaces.Permissions{Read: "team:read", Mount: "team:mount"},
	}
}

func TestCreate_Provisioned(t *testing.T) {
	reg, store, prov := setupRegistry(t)

	prov.On("Provision", mock.Anything, mock.MatchedBy(func(b *interfaces.Bucket) bool {
		return b.Name == "logs" && b.State == interfaces.BucketStatePending && b.RootPath == ""
	})).Run(provisionsTo(store, "/srv/buckets/1a2b3c4d", 17)).
		Return(&interfaces.ProvisioningResult{RootPath: "/srv/buckets/1a2b3c4d", InstanceID: 17}, nil).Once()

	b, err := reg.Create(context.Background(), logsSpec())
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketStateProvisioned, b.State)
	assert.Equal(t, interfaces.BucketTypeStandard, b.BucketType, "empty type defaults to STANDARD")
	assert.Equal(t, "/srv/buckets/1a2b3c4d", b.RootPath)
	require.NotNil(t, b.InstanceID)
	assert.Equal(t, int64(17), *b.InstanceID)

	stored, err := reg.GetByName(context.Background(), "logs")
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
	assert.Equal(t, interfaces.BucketStateProvisioned, stored.State)
	prov.AssertExpectations(t)
}

func TestCreate_ProvisioningFailureKeepsBucket(t *testing.T) {
	reg, store, prov := setupRegistry(t)

	prov.On("Provision", mock.Anything, mock.Anything).
		Run(provisionsTo(store, "/srv/buckets/deadbeef", 0)).
		Return(nil, errors.New("transport failure: connection refused")).Once()

	b, err := reg.Create(context.Background(), logsSpec())
	require.Error(t, err)
	require.NotNil(t, b, "the persisted bucket is returned alongside the error")
	assert.Equal(t, interfaces.BucketStateProvisionFailed, b.State)
	assert.Contains(t, b.ProvisionError, "connection refused")
	assert.Equal(t, "/srv/buckets/deadbeef", b.RootPath)

	stored, err := reg.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketStateProvisionFailed, stored.State)
}

func TestCreate_RecordsFailureAfterCancellation(t *testing.T) {
	reg, _, prov := setupRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	prov.On("Provision", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	b, err := reg.Create(ctx, logsSpec())
	assert.ErrorIs(t, err, context.Canceled)

	stored, getErr := reg.Get(context.Background(), b.ID)
	require.NoError(t, getErr)
	assert.Equal(t, interfaces.BucketStateProvisionFailed, stored.State)
}

func TestCreate_InvariantViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*interfaces.BucketSpec)
	}{
		{"Mount and observe", func(s *interfaces.BucketSpec) { s.MountEnabled, s.ObserveEnabled = true, true }},
		{"External without provider", func(s *interfaces.BucketSpec) { s.BucketType = interfaces.BucketTypeExternal }},
		{"Unknown type", func(s *interfaces.BucketSpec) { s.BucketType = "ARCHIVE" }},
		{"Empty name", func(s *interfaces.BucketSpec) { s.Name = "" }},
		{"Long name", func(s *interfaces.BucketSpec) { s.Name = strings.Repeat("n", MaxNameLength+1) }},
		{"Long cluster", func(s *interfaces.BucketSpec) { s.Cluster = strings.Repeat("c", MaxClusterLength+1) }},
		{"Long provider", func(s *interfaces.BucketSpec) { s.ExternalProvider = strings.Repeat("p", MaxProviderLength+1) }},
		{"Long permissions", func(s *interfaces.BucketSpec) { s.Permissions.Observe = strings.Repeat("o", MaxPermissionsLength+1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, prov := setupRegistry(t)

			spec := logsSpec()
			tt.mutate(&spec)
			b, err := reg.Create(context.Background(), spec)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, interfaces.ErrInvariantViolation)

			var violation *interfaces.InvariantViolation
			assert.ErrorAs(t, err, &violation)

			all, err := reg.List(context.Background(), interfaces.BucketFilter{})
			require.NoError(t, err)
			assert.Empty(t, all)
			prov.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)
		})
	}
}

func TestCreate_ReportsFirstLongPermission(t *testing.T) {
	reg, _, _ := setupRegistry(t)

	spec := logsSpec()
	spec.Permissions.Read = strings.Repeat("r", MaxPermissionsLength+1)
	spec.Permissions.Observe = strings.Repeat("o", MaxPermissionsLength+1)
	for i := 0; i < 20; i++ {
		_, err := reg.Create(context.Background(), spec)
		require.ErrorIs(t, err, interfaces.ErrInvariantViolation)
		assert.Contains(t, err.Error(), "read_permissions")
		assert.NotContains(t, err.Error(), "observe_permissions")
	}
}

func TestCreate_LimitsCountCharacters(t *testing.T) {
	reg, store, prov := setupRegistry(t)
	prov.On("Provision", mock.Anything, mock.Anything).
		Run(provisionsTo(store, "/srv/buckets/00000001", 1)).
		Return(&interfaces.ProvisioningResult{RootPath: "/srv/buckets/00000001", InstanceID: 1}, nil)

	spec := logsSpec()
	spec.Name = strings.Repeat("ł", MaxNameLength)
	_, err := reg.Create(context.Background(), spec)
	assert.NoError(t, err)
}

func TestCreate_ExternalBucket(t *testing.T) {
	reg, store, prov := setupRegistry(t)
	prov.On("Provision", mock.Anything, mock.Anything).
		Run(provisionsTo(store, "/srv/buckets/0e0e0e0e", 3)).
		Return(&interfaces.ProvisioningResult{RootPath: "/srv/buckets/0e0e0e0e", InstanceID: 3}, nil)

	spec := logsSpec()
	spec.BucketType = interfaces.BucketTypeExternal
	spec.ExternalProvider = "minio-east"

	b, err := reg.Create(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketTypeExternal, b.BucketType)
	assert.Equal(t, "minio-east", b.ExternalProvider)
}

func TestCreate_DuplicateName(t *testing.T) {
	reg, store, prov := setupRegistry(t)
	prov.On("Provision", mock.Anything, mock.Anything).
		Run(provisionsTo(store, "/srv/buckets/11111111", 1)).
		Return(&interfaces.ProvisioningResult{RootPath: "/srv/buckets/11111111", InstanceID: 1}, nil).Once()

	_, err := reg.Create(context.Background(), logsSpec())
	require.NoError(t, err)

	b, err := reg.Create(context.Background(), logsSpec())
	assert.Nil(t, b)
	assert.ErrorIs(t, err, interfaces.ErrDuplicateName)
	prov.AssertNumberOfCalls(t, "Provision", 1)
}

func TestCreate_ConcurrentSameName(t *testing.T) {
	reg, _, prov := setupRegistry(t)
	prov.On("Provision", mock.Anything, mock.Anything).
		Return(&interfaces.ProvisioningResult{RootPath: "/srv/buckets/22222222", InstanceID: 1}, nil)

	const attempts = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := reg.Create(context.Background(), logsSpec())
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var succeeded, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, interfaces.ErrDuplicateName):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)

	all, err := reg.List(context.Background(), interfaces.BucketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func createProvisioned(t *testing.T, reg *Registry, store *repository.BucketStore, prov *provisioner.MockProvisioner) *interfaces.Bucket {
	t.Helper()
	prov.On("Provision", mock.Anything, mock.Anything).
		Run(provisionsTo(store, "/srv/buckets/33333333", 5)).
		Return(&interfaces.ProvisioningResult{RootPath: "/srv/buckets/33333333", InstanceID: 5}, nil).Once()

	b, err := reg.Create(context.Background(), logsSpec())
	require.NoError(t, err)
	return b
}

func ptr[T any](v T) *T { return &v }

func TestUpdate_ImmutableFields(t *testing.T) {
	reg, store, prov := setupRegistry(t)
	original := createProvisioned(t, reg, store, prov)

	tests := []struct {
		field  string
		update interfaces.BucketUpdate
	}{
		{"name", interfaces.BucketUpdate{Name: ptr("renamed")}},
		{"bucket_type", interfaces.BucketUpdate{BucketType: ptr(interfaces.BucketTypeExternal)}},
		{"external_provider", interfaces.BucketUpdate{ExternalProvider: ptr("minio-east")}},
		{"cluster", interfaces.BucketUpdate{Cluster: ptr("cluster-b")}},
		{"created_at", interfaces.BucketUpdate{CreatedAt: ptr(original.CreatedAt.Add(-time.Hour))}},
		{"root_path", interfaces.BucketUpdate{RootPath: ptr("/srv/buckets/ffffffff")}},
		{"name", interfaces.BucketUpdate{Name: ptr("renamed"), Description: ptr("changed")}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := reg.Update(context.Background(), original.ID, tt.update)
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrImmutableField)

			var violation *interfaces.ImmutableFieldViolation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, tt.field, violation.Field)

			stored, err := reg.Get(context.Background(), original.ID)
			require.NoError(t, err)
			assert.Equal(t, original, stored)
		})
	}
}

func TestUpdate_UnchangedIdentityIsAllowed(t *testing.T) {
	reg, store, prov := setupRegistry(t)
	original := createProvisioned(t, reg, store, prov)

	updated, err := reg.Update(context.Background(), original.ID, interfaces.BucketUpdate{
		Name:             ptr(original.Name),
		BucketType:       ptr(original.BucketType),
		ExternalProvider: ptr(""),
		Cluster:          ptr(original.Cluster),
		CreatedAt:        ptr(original.CreatedAt),
		RootPath:         ptr(original.RootPath),
		Description:      ptr("rotated logs"),
		WritePermissions: ptr("team:write"),
	})
	require.NoError(t, err)
	assert.Equal(t, "rotated logs", updated.Description)
	assert.Equal(t, "team:write", updated.Permissions.Write)
	assert.Equal(t, "team:read", updated.Permissions.Read)
	assert.Equal(t, original.RootPath, updated.RootPath)
	assert.Equal(t, interfaces.BucketStateProvisioned, updated.State)
	assert.False(t, updated.ModifiedAt.Before(original.ModifiedAt))
}

func TestUpdate_MountObserveExclusivity(t *testing.T) {
	reg, store, prov := setupRegistry(t)
	original := createProvisioned(t, reg, store, prov)

	_, err := reg.Update(context.Background(), original.ID, interfaces.BucketUpdate{
		MountEnabled:   ptr(true),
		ObserveEnabled: ptr(true),
	})
	assert.ErrorIs(t, err, interfaces.ErrInvariantViolation)

	_, err = reg.Update(context.Background(), original.ID, interfaces.BucketUpdate{MountEnabled: ptr(true)})
	require.NoError(t, err)

	_, err = reg.Update(context.Background(), original.ID, interfaces.BucketUpdate{ObserveEnabled: ptr(true)})
	assert.ErrorIs(t, err, interfaces.ErrInvariantViolation)

	switched, err := reg.Update(context.Background(), original.ID, interfaces.BucketUpdate{
		MountEnabled:   ptr(false),
		ObserveEnabled: ptr(true),
	})
	require.NoError(t, err)
	assert.False(t, switched.MountEnabled)
	assert.True(t, switched.ObserveEnabled)
}

func TestUpdate_NotFound(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	_, err := reg.Update(context.Background(), 404, interfaces.BucketUpdate{Description: ptr("x")})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestReprovision(t *testing.T) {
	reg, store, prov := setupRegistry(t)

	prov.On("Provision", mock.Anything, mock.Anything).
		Run(provisionsTo(store, "/srv/buckets/44444444", 0)).
		Return(nil, interfaces.ErrTransportFailure).Once()

	failed, err := reg.Create(context.Background(), logsSpec())
	require.ErrorIs(t, err, interfaces.ErrTransportFailure)
	require.Equal(t, interfaces.BucketStateProvisionFailed, failed.State)

	prov.On("Provision", mock.Anything, mock.MatchedBy(func(b *interfaces.Bucket) bool {
		return b.RootPath == "/srv/buckets/44444444" && b.State == interfaces.BucketStatePending
	})).Return(&interfaces.ProvisioningResult{RootPath: "/srv/buckets/44444444", InstanceID: 8}, nil).Once()

	b, err := reg.Reprovision(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.BucketStateProvisioned, b.State)
	assert.Equal(t, "/srv/buckets/44444444", b.RootPath)
	assert.Empty(t, b.ProvisionError)

	_, err = reg.Reprovision(context.Background(), failed.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidStateTransition)

	_, err = reg.Reprovision(context.Background(), 404)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	prov.AssertExpectations(t)
}

func TestList_RejectsUnknownState(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	_, err := reg.List(context.Background(), interfaces.BucketFilter{State: "archived"})
	assert.ErrorIs(t, err, interfaces.ErrInvariantViolation)
}
