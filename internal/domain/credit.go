package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TxGrant    TransactionType = "grant"
	TxPurchase TransactionType = "purchase"
	TxRefund   TransactionType = "refund"
	TxSpend    TransactionType = "spend"
	TxUsage    TransactionType = "usage"
)

const (
	PlanFree = "free"

	SubscriptionNone = "none"
)

// activeSubscriptionStatuses are statuses that suppress the free monthly top-up
var activeSubscriptionStatuses = map[string]bool{
	"active":   true,
	"past_due": true,
	"trialing": true,
}

// CreditAccount is the per-owner balance
type CreditAccount struct {
	Balance            decimal.Decimal
	CreatedAt          time.Time
	OwnerID            string
	Plan               string
	SubscriptionStatus string
	UpdatedAt          time.Time
}

// HasActiveSubscription reports whether a paid subscription is in effect
func (a CreditAccount) HasActiveSubscription() bool {
	return activeSubscriptionStatuses[a.SubscriptionStatus]
}

// CreditTransaction is an append-only ledger entry
type CreditTransaction struct {
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
	Description  string
	ID           string
	OwnerID      string
	Type         TransactionType
}
