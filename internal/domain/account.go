package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID            uuid.UUID
	OwnerID       int64
	AccountNumber string
	AccountType   string
	Balance       decimal.Decimal
	Active        bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BalanceView is a read-only snapshot of the balance-relevant fields of an
// account at QueriedAt.
type BalanceView struct {
	ID            uuid.UUID
	AccountNumber string
	Balance       decimal.Decimal
	AccountType   string
	QueriedAt     time.Time
}

type AccountSummary struct {
	ID            uuid.UUID
	OwnerID       int64
	AccountNumber string
	AccountType   string
}

func (a *Account) View(at time.Time) *BalanceView {
	return &BalanceView{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
		AccountType:   a.AccountType,
		QueriedAt:     at,
	}
}

func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:            a.ID,
		OwnerID:       a.OwnerID,
		AccountNumber: a.AccountNumber,
		AccountType:   a.AccountType,
	}
}

// AccountRepository persists accounts. Save is conditional on Version: a
// stale version must fail with a conflict and leave the stored row untouched.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*Account, error)
	Save(ctx context.Context, account *Account) (*Account, error)
}
