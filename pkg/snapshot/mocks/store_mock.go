package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"flickrheat/pkg/snapshot"
)

type MockStore struct {
	mock.Mock
}

var _ snapshot.Store = (*MockStore)(nil)

func (m *MockStore) Put(ctx context.Context, s snapshot.Snapshot) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, username string) (snapshot.Snapshot, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(snapshot.Snapshot), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
