package repository

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"wallet-service/internal/domain"
	"wallet-service/internal/errors"
)

// memoryAccountRepository keeps accounts in process memory with the same
// version-checked Save semantics as the SQL repository. Records are copied
// on the way in and out so callers never share state with the store.
type memoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
	numbers  map[string]uuid.UUID
	logger   *slog.Logger
}

func NewMemoryAccountRepository(logger *slog.Logger) domain.AccountRepository {
	return &memoryAccountRepository{
		accounts: make(map[uuid.UUID]*domain.Account),
		numbers:  make(map[string]uuid.UUID),
		logger:   logger,
	}
}

func (r *memoryAccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.numbers[account.AccountNumber]; taken {
		r.logger.Warn("Duplicate account number", "account_number", account.AccountNumber)
		return nil, errors.ErrDuplicateAccountNumber
	}

	stored := *account
	stored.ID = uuid.New()
	stored.Version = 1

	r.accounts[stored.ID] = &stored
	r.numbers[stored.AccountNumber] = stored.ID

	r.logger.Info("Account created successfully", "account_id", stored.ID, "owner_id", stored.OwnerID)
	out := stored
	return &out, nil
}

func (r *memoryAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		r.logger.Warn("Account not found", "account_id", id)
		return nil, errors.ErrAccountNotFound
	}
	out := *account
	return &out, nil
}

func (r *memoryAccountRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]*domain.Account, 0)
	for _, account := range r.accounts {
		if account.OwnerID == ownerID {
			out := *account
			accounts = append(accounts, &out)
		}
	}

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID.String() < accounts[j].ID.String()
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})

	return accounts, nil
}

func (r *memoryAccountRepository) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.accounts[account.ID]
	if !ok {
		r.logger.Warn("No account found to update", "account_id", account.ID)
		return nil, errors.ErrAccountNotFound
	}
	if current.Version != account.Version {
		r.logger.Warn("Stale account version", "account_id", account.ID, "version", account.Version, "current_version", current.Version)
		return nil, errors.ErrConflict
	}

	current.Balance = account.Balance
	current.UpdatedAt = account.UpdatedAt
	current.Version++

	r.logger.Info("Account balance updated", "account_id", account.ID, "new_balance", current.Balance, "version", current.Version)
	out := *current
	return &out, nil
}
