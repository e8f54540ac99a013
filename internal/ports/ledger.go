package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buildloop/buildloop/internal/domain"
)

// CreditLedger is the per-owner balance and its append-only journal.
// Adjust applies the delta and inserts the journal entry atomically and
// fails with domain.ErrInsufficientCredits rather than going negative.
type CreditLedger interface {
	AdjustCredits(ctx context.Context, ownerID string, delta decimal.Decimal, txType domain.TransactionType, description string) (decimal.Decimal, error)
	CountTransactionsSince(ctx context.Context, ownerID string, txType domain.TransactionType, description string, since time.Time) (int64, error)
	CreateAccount(ctx context.Context, account domain.CreditAccount) error
	GetAccount(ctx context.Context, ownerID string) (*domain.CreditAccount, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.CreditTransaction, error)
}
