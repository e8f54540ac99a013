package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/buildloop/buildloop/internal/domain"
)

// MockCreditLedger is a testify mock of ports.CreditLedger
type MockCreditLedger struct {
	mock.Mock
}

type MockCreditLedger_Expecter struct {
	mock *mock.Mock
}

func (_m *MockCreditLedger) EXPECT() *MockCreditLedger_Expecter {
	return &MockCreditLedger_Expecter{mock: &_m.Mock}
}

func (_m *MockCreditLedger) AdjustCredits(ctx context.Context, ownerID string, delta decimal.Decimal, txType domain.TransactionType, description string) (decimal.Decimal, error) {
	ret := _m.Called(ctx, ownerID, delta, txType, description)
	return ret.Get(0).(decimal.Decimal), ret.Error(1)
}

func (_m *MockCreditLedger) CountTransactionsSince(ctx context.Context, ownerID string, txType domain.TransactionType, description string, since time.Time) (int64, error) {
	ret := _m.Called(ctx, ownerID, txType, description, since)
	return ret.Get(0).(int64), ret.Error(1)
}

func (_m *MockCreditLedger) CreateAccount(ctx context.Context, account domain.CreditAccount) error {
	ret := _m.Called(ctx, account)
	return ret.Error(0)
}

func (_m *MockCreditLedger) GetAccount(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	ret := _m.Called(ctx, ownerID)
	var account *domain.CreditAccount
	if v := ret.Get(0); v != nil {
		account = v.(*domain.CreditAccount)
	}
	return account, ret.Error(1)
}

func (_m *MockCreditLedger) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.CreditTransaction, error) {
	ret := _m.Called(ctx, ownerID, limit)
	var txs []domain.CreditTransaction
	if v := ret.Get(0); v != nil {
		txs = v.([]domain.CreditTransaction)
	}
	return txs, ret.Error(1)
}

type MockCreditLedger_AdjustCredits_Call struct {
	*mock.Call
}

func (_e *MockCreditLedger_Expecter) AdjustCredits(ctx any, ownerID any, delta any, txType any, description any) *MockCreditLedger_AdjustCredits_Call {
	return &MockCreditLedger_AdjustCredits_Call{Call: _e.mock.On("AdjustCredits", ctx, ownerID, delta, txType, description)}
}

func (_c *MockCreditLedger_AdjustCredits_Call) Return(balance decimal.Decimal, err error) *MockCreditLedger_AdjustCredits_Call {
	_c.Call.Return(balance, err)
	return _c
}

type MockCreditLedger_CountTransactionsSince_Call struct {
	*mock.Call
}

func (_e *MockCreditLedger_Expecter) CountTransactionsSince(ctx any, ownerID any, txType any, description any, since any) *MockCreditLedger_CountTransactionsSince_Call {
	return &MockCreditLedger_CountTransactionsSince_Call{Call: _e.mock.On("CountTransactionsSince", ctx, ownerID, txType, description, since)}
}

func (_c *MockCreditLedger_CountTransactionsSince_Call) Return(count int64, err error) *MockCreditLedger_CountTransactionsSince_Call {
	_c.Call.Return(count, err)
	return _c
}

type MockCreditLedger_CreateAccount_Call struct {
	*mock.Call
}

func (_e *MockCreditLedger_Expecter) CreateAccount(ctx any, account any) *MockCreditLedger_CreateAccount_Call {
	return &MockCreditLedger_CreateAccount_Call{Call: _e.mock.On("CreateAccount", ctx, account)}
}

func (_c *MockCreditLedger_CreateAccount_Call) Return(err error) *MockCreditLedger_CreateAccount_Call {
	_c.Call.Return(err)
	return _c
}

type MockCreditLedger_GetAccount_Call struct {
	*mock.Call
}

func (_e *MockCreditLedger_Expecter) GetAccount(ctx any, ownerID any) *MockCreditLedger_GetAccount_Call {
	return &MockCreditLedger_GetAccount_Call{Call: _e.mock.On("GetAccount", ctx, ownerID)}
}

func (_c *MockCreditLedger_GetAccount_Call) Return(account *domain.CreditAccount, err error) *MockCreditLedger_GetAccount_Call {
	_c.Call.Return(account, err)
	return _c
}

type MockCreditLedger_ListTransactions_Call struct {
	*mock.Call
}

func (_e *MockCreditLedger_Expecter) ListTransactions(ctx any, ownerID any, limit any) *MockCreditLedger_ListTransactions_Call {
	return &MockCreditLedger_ListTransactions_Call{Call: _e.mock.On("ListTransactions", ctx, ownerID, limit)}
}

func (_c *MockCreditLedger_ListTransactions_Call) Return(txs []domain.CreditTransaction, err error) *MockCreditLedger_ListTransactions_Call {
	_c.Call.Return(txs, err)
	return _c
}

// NewMockCreditLedger creates a mock and registers expectation assertions on cleanup
func NewMockCreditLedger(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCreditLedger {
	m := &MockCreditLedger{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
