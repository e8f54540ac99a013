package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

const (
	signupGrantDescription  = "Free credits on signup"
	monthlyGrantDescription = "Free plan monthly renewal"
)

// CreditService meters executions against the owner's credit balance
type CreditService struct {
	freeCredits     int
	ledger          ports.CreditLedger
	now             func() time.Time
	tokensPerCredit int
}

// NewCreditService creates a CreditService
func NewCreditService(ledger ports.CreditLedger, tokensPerCredit, freeCredits int) *CreditService {
	return &CreditService{
		freeCredits:     freeCredits,
		ledger:          ledger,
		now:             time.Now,
		tokensPerCredit: max(1, tokensPerCredit),
	}
}

// Estimate approximates the token count of an instruction (four characters
// per token) and the credits it costs, never less than one
func (s *CreditService) Estimate(instruction string) (tokens, credits int) {
	tokens = max(1, utf8.RuneCountInString(instruction)/4)
	credits = max(1, (tokens+s.tokensPerCredit-1)/s.tokensPerCredit)
	return tokens, credits
}

// EnsureAccount returns the owner's account, creating it with the signup
// grant and applying the monthly free top-up when due
func (s *CreditService) EnsureAccount(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	account, err := s.ledger.GetAccount(ctx, ownerID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		account, err = s.createAccount(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.monthlyTopUp(ctx, account); err != nil {
		// The top-up never blocks a request
		logging.Logger.Warn("Monthly credit top-up failed", "owner_id", ownerID, "error", err)
	}
	return s.ledger.GetAccount(ctx, ownerID)
}

func (s *CreditService) createAccount(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	err := s.ledger.CreateAccount(ctx, domain.CreditAccount{
		Balance:            decimal.Zero,
		OwnerID:            ownerID,
		Plan:               domain.PlanFree,
		SubscriptionStatus: domain.SubscriptionNone,
	})
	if err != nil {
		// Another request may have created it first
		if account, getErr := s.ledger.GetAccount(ctx, ownerID); getErr == nil {
			return account, nil
		}
		return nil, fmt.Errorf("failed to create credit account: %w", err)
	}

	if s.freeCredits > 0 {
		if _, err := s.ledger.AdjustCredits(ctx, ownerID, decimal.NewFromInt(int64(s.freeCredits)), domain.TxGrant, signupGrantDescription); err != nil {
			return nil, fmt.Errorf("failed to grant signup credits: %w", err)
		}
	}
	logging.Logger.Info("Credit account created", "owner_id", ownerID, "free_credits", s.freeCredits)
	return s.ledger.GetAccount(ctx, ownerID)
}

// monthlyTopUp brings a free account without a subscription back up to the
// signup amount once per calendar month. The signup grant counts as the
// grant of its month.
func (s *CreditService) monthlyTopUp(ctx context.Context, account *domain.CreditAccount) error {
	if s.freeCredits <= 0 || account.Plan != domain.PlanFree || account.HasActiveSubscription() {
		return nil
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, desc := range []string{monthlyGrantDescription, signupGrantDescription} {
		n, err := s.ledger.CountTransactionsSince(ctx, account.OwnerID, domain.TxGrant, desc, monthStart)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}

	delta := decimal.NewFromInt(int64(s.freeCredits)).Sub(account.Balance)
	if !delta.IsPositive() {
		return nil
	}
	_, err := s.ledger.AdjustCredits(ctx, account.OwnerID, delta, domain.TxGrant, monthlyGrantDescription)
	if err == nil {
		logging.Logger.Info("Monthly free credits granted", "owner_id", account.OwnerID, "amount", delta.String())
	}
	return err
}

// Charge debits the estimated cost of an instruction up front
func (s *CreditService) Charge(ctx context.Context, ownerID string, requestType domain.RequestType, instruction string) (decimal.Decimal, error) {
	account, err := s.EnsureAccount(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}

	tokens, credits := s.Estimate(instruction)
	debit := decimal.NewFromInt(int64(credits))
	if account.Balance.LessThan(debit) {
		return decimal.Zero, domain.ErrInsufficientCredits
	}

	desc := fmt.Sprintf("%s request; approx_tokens=%d; rate=1 credit/%d tokens", requestType, tokens, s.tokensPerCredit)
	if _, err := s.ledger.AdjustCredits(ctx, ownerID, debit.Neg(), domain.TxSpend, desc); err != nil {
		return decimal.Zero, err
	}
	return debit, nil
}

// Refund returns one credit after an execution failed with an error
func (s *CreditService) Refund(ctx context.Context, ownerID string, requestType domain.RequestType) error {
	desc := "Act failed"
	if requestType == domain.RequestChat {
		desc = "Chat failed"
	}
	_, err := s.ledger.AdjustCredits(ctx, ownerID, decimal.NewFromInt(1), domain.TxRefund, desc)
	return err
}

// Grant adds credits to an account, creating it if needed
func (s *CreditService) Grant(ctx context.Context, ownerID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("grant amount must be positive, got %s", amount)
	}
	if _, err := s.EnsureAccount(ctx, ownerID); err != nil {
		return decimal.Zero, err
	}
	if description == "" {
		description = "Manual grant"
	}
	return s.ledger.AdjustCredits(ctx, ownerID, amount, domain.TxGrant, description)
}

// Balance returns the owner's account and recent ledger entries
func (s *CreditService) Balance(ctx context.Context, ownerID string, limit int) (*domain.CreditAccount, []domain.CreditTransaction, error) {
	account, err := s.EnsureAccount(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.ledger.ListTransactions(ctx, ownerID, limit)
	if err != nil {
		return nil, nil, err
	}
	return account, txs, nil
}

// Reverse returns a debit taken for a submission that could not be recorded
func (s *CreditService) Reverse(ctx context.Context, ownerID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	_, err := s.ledger.AdjustCredits(ctx, ownerID, amount, domain.TxRefund, "Submission not recorded")
	return err
}
