package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/buildloop/buildloop/internal/domain"
)

// MockBroadcaster is a testify mock of ports.Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

type MockBroadcaster_Expecter struct {
	mock *mock.Mock
}

func (_m *MockBroadcaster) EXPECT() *MockBroadcaster_Expecter {
	return &MockBroadcaster_Expecter{mock: &_m.Mock}
}

func (_m *MockBroadcaster) Broadcast(ctx context.Context, projectID string, event domain.Event) error {
	ret := _m.Called(ctx, projectID, event)
	return ret.Error(0)
}

type MockBroadcaster_Broadcast_Call struct {
	*mock.Call
}

func (_e *MockBroadcaster_Expecter) Broadcast(ctx any, projectID any, event any) *MockBroadcaster_Broadcast_Call {
	return &MockBroadcaster_Broadcast_Call{Call: _e.mock.On("Broadcast", ctx, projectID, event)}
}

func (_c *MockBroadcaster_Broadcast_Call) Return(err error) *MockBroadcaster_Broadcast_Call {
	_c.Call.Return(err)
	return _c
}

func (_c *MockBroadcaster_Broadcast_Call) Run(run func(ctx context.Context, projectID string, event domain.Event)) *MockBroadcaster_Broadcast_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(string), args[2].(domain.Event))
	})
	return _c
}

// NewMockBroadcaster creates a mock and registers expectation assertions on cleanup
func NewMockBroadcaster(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBroadcaster {
	m := &MockBroadcaster{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
