package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventAccountCreated   = "account.created"
	EventAccountDeposited = "account.deposited"
	EventAccountWithdrawn = "account.withdrawn"
)

type AccountEvent struct {
	Type          string           `json:"type"`
	AccountID     uuid.UUID        `json:"account_id"`
	OwnerID       int64            `json:"owner_id"`
	AccountNumber string           `json:"account_number"`
	Balance       decimal.Decimal  `json:"balance"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func NewAccountEvent(eventType string, account *Account, amount *decimal.Decimal) *AccountEvent {
	return &AccountEvent{
		Type:          eventType,
		AccountID:     account.ID,
		OwnerID:       account.OwnerID,
		AccountNumber: account.AccountNumber,
		Balance:       account.Balance,
		Amount:        amount,
		OccurredAt:    account.UpdatedAt,
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event *AccountEvent) error
}
