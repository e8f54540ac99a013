package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/buildloop/buildloop/internal/domain"
)

// MockRepoCommitter is a testify mock of ports.RepoCommitter
type MockRepoCommitter struct {
	mock.Mock
}

type MockRepoCommitter_Expecter struct {
	mock *mock.Mock
}

func (_m *MockRepoCommitter) EXPECT() *MockRepoCommitter_Expecter {
	return &MockRepoCommitter_Expecter{mock: &_m.Mock}
}

func (_m *MockRepoCommitter) CommitAll(ctx context.Context, repoPath string, message string) (domain.CommitResult, error) {
	ret := _m.Called(ctx, repoPath, message)

	if fn, ok := ret.Get(0).(func(context.Context, string, string) (domain.CommitResult, error)); ok {
		return fn(ctx, repoPath, message)
	}
	return ret.Get(0).(domain.CommitResult), ret.Error(1)
}

type MockRepoCommitter_CommitAll_Call struct {
	*mock.Call
}

func (_e *MockRepoCommitter_Expecter) CommitAll(ctx any, repoPath any, message any) *MockRepoCommitter_CommitAll_Call {
	return &MockRepoCommitter_CommitAll_Call{Call: _e.mock.On("CommitAll", ctx, repoPath, message)}
}

func (_c *MockRepoCommitter_CommitAll_Call) Return(result domain.CommitResult, err error) *MockRepoCommitter_CommitAll_Call {
	_c.Call.Return(result, err)
	return _c
}

func (_c *MockRepoCommitter_CommitAll_Call) Run(run func(ctx context.Context, repoPath string, message string)) *MockRepoCommitter_CommitAll_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(string), args[2].(string))
	})
	return _c
}

// NewMockRepoCommitter creates a mock and registers expectation assertions on cleanup
func NewMockRepoCommitter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRepoCommitter {
	m := &MockRepoCommitter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
