// Package mocks provides test doubles for the directory client.
package mocks

import (
	"context"

	directory "github.com/islandways/placesync/pkg/directory"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SearchText provides a mock function with given fields: ctx, req
func (_m *MockClient) SearchText(ctx context.Context, req directory.SearchRequest) (*directory.SearchResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for SearchText")
	}

	var r0 *directory.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, directory.SearchRequest) (*directory.SearchResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, directory.SearchRequest) *directory.SearchResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*directory.SearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, directory.SearchRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Details provides a mock function with given fields: ctx, placeID
func (_m *MockClient) Details(ctx context.Context, placeID string) (*directory.PlaceDetails, error) {
	ret := _m.Called(ctx, placeID)

	if len(ret) == 0 {
		panic("no return value specified for Details")
	}

	var r0 *directory.PlaceDetails
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*directory.PlaceDetails, error)); ok {
		return rf(ctx, placeID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *directory.PlaceDetails); ok {
		r0 = rf(ctx, placeID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*directory.PlaceDetails)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, placeID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Counts provides a mock function with no fields.
func (_m *MockClient) Counts() directory.Counts {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Counts")
	}

	var r0 directory.Counts
	if rf, ok := ret.Get(0).(func() directory.Counts); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(directory.Counts)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
