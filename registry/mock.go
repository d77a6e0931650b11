package registry

import (
	"context"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the interfaces.BucketRegistry interface
type MockRegistry struct {
	mock.Mock
}

func bucketOrNil(v any) *interfaces.Bucket {
	if v == nil {
		return nil
	}
	return v.(*interfaces.Bucket)
}

// Create mocks the Create method
func (m *MockRegistry) Create(ctx context.Context, spec interfaces.BucketSpec) (*interfaces.Bucket, error) {
	args := m.Called(ctx, spec)
	return bucketOrNil(args.Get(0)), args.Error(1)
}

// Update mocks the Update method
func (m *MockRegistry) Update(ctx context.Context, id int64, update interfaces.BucketUpdate) (*interfaces.Bucket, error) {
	args := m.Called(ctx, id, update)
	return bucketOrNil(args.Get(0)), args.Error(1)
}

// Get mocks the Get method
func (m *MockRegistry) Get(ctx context.Context, id int64) (*interfaces.Bucket, error) {
	args := m.Called(ctx, id)
	return bucketOrNil(args.Get(0)), args.Error(1)
}

// GetByName mocks the GetByName method
func (m *MockRegistry) GetByName(ctx context.Context, name string) (*interfaces.Bucket, error) {
	args := m.Called(ctx, name)
	return bucketOrNil(args.Get(0)), args.Error(1)
}

// List mocks the List method
func (m *MockRegistry) List(ctx context.Context, filter interfaces.BucketFilter) ([]*interfaces.Bucket, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*interfaces.Bucket), args.Error(1)
}

// Reprovision mocks the Reprovision method
func (m *MockRegistry) Reprovision(ctx context.Context, id int64) (*interfaces.Bucket, error) {
	args := m.Called(ctx, id)
	return bucketOrNil(args.Get(0)), args.Error(1)
}
