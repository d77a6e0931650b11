package provisioner

import (
	"context"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockProvisioner implements a mock interfaces.Provisioner for testing.
// The behavior is determined by how the mock is configured in tests.
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Provision(ctx context.Context, b *interfaces.Bucket) (*interfaces.ProvisioningResult, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ProvisioningResult), args.Error(1)
}

// MockTransport implements a mock interfaces.Transport for testing.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, env interfaces.SignedEnvelope) (*interfaces.InstanceReceipt, error) {
	args := m.Called(ctx, env)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.InstanceReceipt), args.Error(1)
}
