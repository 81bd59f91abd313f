package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTokenStore is a mock implementation of TokenStore for testing
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) LoadRefreshToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) SaveRefreshToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}
