package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/buildloop/buildloop/internal/domain"
)

// CreateAccount implements CreditLedger.CreateAccount
func (r *SQLiteRepository) CreateAccount(ctx context.Context, account domain.CreditAccount) error {
	plan := account.Plan
	if plan == "" {
		plan = domain.PlanFree
	}
	subscription := account.SubscriptionStatus
	if subscription == "" {
		subscription = domain.SubscriptionNone
	}
	model := CreditAccountModel{
		Balance:            account.Balance,
		OwnerID:            account.OwnerID,
		Plan:               plan,
		SubscriptionStatus: subscription,
	}
	return withRetry(func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	}, 3)
}

// GetAccount implements CreditLedger.GetAccount
func (r *SQLiteRepository) GetAccount(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	var model CreditAccountModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ownerID)
		}
		return nil, err
	}
	account := creditAccountModelToDomain(model)
	return &account, nil
}

// AdjustCredits implements CreditLedger.AdjustCredits. The balance update and
// the journal insert share one transaction; a negative result is refused.
func (r *SQLiteRepository) AdjustCredits(ctx context.Context, ownerID string, delta decimal.Decimal, txType domain.TransactionType, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var account CreditAccountModel
			if err := tx.Where("owner_id = ?", ownerID).First(&account).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, ownerID)
				}
				return err
			}

			next := account.Balance.Add(delta)
			if next.IsNegative() {
				return domain.ErrInsufficientCredits
			}

			if err := tx.Model(&CreditAccountModel{}).
				Where("owner_id = ?", ownerID).
				Updates(map[string]any{"balance": next, "updated_at": time.Now().UTC()}).Error; err != nil {
				return err
			}

			entry := CreditTransactionModel{
				Amount:       delta,
				BalanceAfter: next,
				Description:  description,
				ID:           uuid.NewString(),
				OwnerID:      ownerID,
				Type:         string(txType),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}

			balance = next
			return nil
		})
	}, 3)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// CountTransactionsSince implements CreditLedger.CountTransactionsSince
func (r *SQLiteRepository) CountTransactionsSince(ctx context.Context, ownerID string, txType domain.TransactionType, description string, since time.Time) (int64, error) {
	var count int64
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Model(&CreditTransactionModel{}).
			Where("owner_id = ? AND type = ? AND description = ? AND created_at >= ?", ownerID, string(txType), description, since.UTC()).
			Count(&count).Error
	}, 3)
	return count, err
}

// ListTransactions implements CreditLedger.ListTransactions (newest first)
func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.CreditTransaction, error) {
	var models []CreditTransactionModel
	err := withRetry(func() error {
		query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query.Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.CreditTransaction, 0, len(models))
	for _, m := range models {
		txs = append(txs, creditTransactionModelToDomain(m))
	}
	return txs, nil
}
