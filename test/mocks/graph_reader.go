package mocks

import (
	"context"
	"iter"

	"github.com/stretchr/testify/mock"

	"spextract/domain/sharepoint"
)

// MockGraphReader is a mock implementation of the Graph client for testing
type MockGraphReader struct {
	mock.Mock
}

func (m *MockGraphReader) GetSiteByRelativeURL(ctx context.Context, hostname, relPath string) (*sharepoint.Site, error) {
	args := m.Called(ctx, hostname, relPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.Site), args.Error(1)
}

func (m *MockGraphReader) GetSiteListByName(ctx context.Context, siteID, name string) (*sharepoint.List, error) {
	args := m.Called(ctx, siteID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.List), args.Error(1)
}

func (m *MockGraphReader) GetListColumns(ctx context.Context, siteID, listID string) ([]sharepoint.Column, error) {
	args := m.Called(ctx, siteID, listID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sharepoint.Column), args.Error(1)
}

func (m *MockGraphReader) ListItemPages(ctx context.Context, siteID, listID string) iter.Seq2[[]sharepoint.ItemFields, error] {
	args := m.Called(ctx, siteID, listID)
	return args.Get(0).(iter.Seq2[[]sharepoint.ItemFields, error])
}

func (m *MockGraphReader) Calls() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}
