package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wallet-service/internal/domain"
	"wallet-service/internal/errors"
)

const (
	accountNumberPrefix   = "ACC-"
	accountNumberDigits   = 10
	accountNumberAttempts = 5
	amountScale           = 2

	// Matches the accounts columns: balance NUMERIC(20,2), account_type VARCHAR(64).
	maxIntegerDigits     = 18
	maxAccountTypeLength = 64
)

var (
	accountNumberSpace = big.NewInt(10_000_000_000)

	// maxAmount bounds every amount and every balance: 10^18 - 0.01.
	maxAmount = decimal.New(1, maxIntegerDigits).Sub(decimal.New(1, -amountScale))
)

// AccountService applies create, deposit, withdraw and read operations to
// accounts. Mutations on one account are serialized in-process and guarded
// across processes by the repository's version check.
type AccountService struct {
	accounts  domain.AccountRepository
	verifier  domain.IdentityVerifier
	publisher domain.EventPublisher
	logger    *slog.Logger

	conflictRetries int
	locks           *accountLocks
	now             func() time.Time
	newNumber       func() (string, error)
}

func NewAccountService(
	accounts domain.AccountRepository,
	verifier domain.IdentityVerifier,
	publisher domain.EventPublisher,
	logger *slog.Logger,
	conflictRetries int,
) *AccountService {
	if conflictRetries <= 0 {
		conflictRetries = 3
	}
	return &AccountService{
		accounts:        accounts,
		verifier:        verifier,
		publisher:       publisher,
		logger:          logger,
		conflictRetries: conflictRetries,
		locks:           newAccountLocks(),
		now:             func() time.Time { return time.Now().UTC() },
		newNumber:       generateAccountNumber,
	}
}

func (s *AccountService) CreateAccount(ctx context.Context, cred domain.Credential, ownerID int64, accountType string) (account *domain.Account, err error) {
	defer func() { observe("create", err) }()

	s.logger.Info("Creating account", "owner_id", ownerID, "account_type", accountType)

	accountType = strings.TrimSpace(accountType)
	if ownerID <= 0 {
		return nil, errors.NewAppError(errors.InvalidInput, "owner id must be positive")
	}
	if accountType == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "account type is required")
	}
	if utf8.RuneCountInString(accountType) > maxAccountTypeLength {
		return nil, errors.NewAppErrorf(errors.InvalidInput, "account type must be at most %d characters", maxAccountTypeLength)
	}

	if err := s.verifyOwner(ctx, cred, ownerID); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= accountNumberAttempts; attempt++ {
		number, err := s.newNumber()
		if err != nil {
			s.logger.Error("Failed to generate account number", "error", err)
			return nil, errors.ErrInternal.WithDetails(err.Error())
		}

		now := s.now()
		created, err := s.accounts.Create(ctx, &domain.Account{
			OwnerID:       ownerID,
			AccountNumber: number,
			AccountType:   accountType,
			Balance:       decimal.Zero,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if errors.Is(err, errors.ErrDuplicateAccountNumber) {
			s.logger.Warn("Account number collision, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("Account created successfully", "account_id", created.ID, "owner_id", ownerID)
		s.publish(ctx, domain.NewAccountEvent(domain.EventAccountCreated, created, nil))
		return created, nil
	}

	s.logger.Error("Account number attempts exhausted", "owner_id", ownerID, "attempts", accountNumberAttempts)
	return nil, errors.ErrInternal.WithDetails("could not allocate a unique account number")
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (account *domain.Account, err error) {
	defer func() { observe("get", err) }()

	s.logger.Info("Getting account", "account_id", id)
	return s.accounts.GetByID(ctx, id)
}

func (s *AccountService) ListAccountsByOwner(ctx context.Context, cred domain.Credential, ownerID int64) (summaries []domain.AccountSummary, err error) {
	defer func() { observe("list", err) }()

	s.logger.Info("Listing accounts", "owner_id", ownerID)

	if ownerID <= 0 {
		return nil, errors.NewAppError(errors.InvalidInput, "owner id must be positive")
	}
	if err := s.verifyOwner(ctx, cred, ownerID); err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summaries = make([]domain.AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, account.Summary())
	}
	return summaries, nil
}

func (s *AccountService) GetBalance(ctx context.Context, id uuid.UUID) (view *domain.BalanceView, err error) {
	defer func() { observe("balance", err) }()

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return account.View(s.now()), nil
}

func (s *AccountService) Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (view *domain.BalanceView, err error) {
	defer func() { observe("deposit", err) }()

	s.logger.Info("Processing deposit", "account_id", id, "amount", amount)

	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "deposit", id, func(account *domain.Account) error {
		balance := account.Balance.Add(amount)
		if balance.GreaterThan(maxAmount) {
			return errors.NewAppErrorf(errors.InvalidAmount, "deposit would take the balance above %s", maxAmount.StringFixed(amountScale))
		}
		account.Balance = balance
		return nil
	}, domain.EventAccountDeposited, amount)
}

func (s *AccountService) Withdraw(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (view *domain.BalanceView, err error) {
	defer func() { observe("withdraw", err) }()

	s.logger.Info("Processing withdrawal", "account_id", id, "amount", amount)

	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "withdraw", id, func(account *domain.Account) error {
		if account.Balance.LessThan(amount) {
			return errors.ErrInsufficientFunds
		}
		account.Balance = account.Balance.Sub(amount)
		return nil
	}, domain.EventAccountWithdrawn, amount)
}

// mutate runs fetch-apply-save under the account's lock, re-running the
// whole cycle when the repository reports a version conflict.
func (s *AccountService) mutate(
	ctx context.Context,
	operation string,
	id uuid.UUID,
	apply func(*domain.Account) error,
	eventType string,
	amount decimal.Decimal,
) (*domain.BalanceView, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 1; attempt <= s.conflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Operation abandoned", "operation", operation, "account_id", id, "attempt", attempt, "error", err)
			return nil, errors.ErrInternal.WithDetails(fmt.Sprintf("%s on account %s: %v", operation, id, err))
		}

		account, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := apply(account); err != nil {
			s.logger.Warn("Operation rejected", "operation", operation, "account_id", id, "error", err)
			return nil, err
		}
		account.UpdatedAt = s.now()

		saved, err := s.accounts.Save(ctx, account)
		if errors.Is(err, errors.ErrConflict) {
			ledgerConflictRetriesTotal.WithLabelValues(operation).Inc()
			s.logger.Warn("Concurrent update detected, retrying", "operation", operation, "account_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("Balance updated", "operation", operation, "account_id", id, "balance", saved.Balance)
		s.publish(ctx, domain.NewAccountEvent(eventType, saved, &amount))
		return saved.View(s.now()), nil
	}

	s.logger.Error("Concurrent update retries exhausted", "operation", operation, "account_id", id, "attempts", s.conflictRetries)
	return nil, errors.ErrInternal.WithDetails(fmt.Sprintf("%s on account %s conflicted %d times", operation, id, s.conflictRetries))
}

func (s *AccountService) verifyOwner(ctx context.Context, cred domain.Credential, ownerID int64) error {
	if strings.TrimSpace(string(cred)) == "" {
		return errors.ErrUnauthorized
	}

	result, err := s.verifier.Exists(ctx, ownerID, cred)
	switch result {
	case domain.VerificationFound:
		return nil
	case domain.VerificationNotFound:
		return errors.ErrOwnerNotFound
	case domain.VerificationUnauthorized:
		return errors.ErrAccessDenied
	default:
		s.logger.Error("Identity verification unavailable", "owner_id", ownerID, "error", err)
		return errors.ErrUpstreamUnavailable
	}
}

func (s *AccountService) publish(ctx context.Context, event *domain.AccountEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish account event", "type", event.Type, "account_id", event.AccountID, "error", err)
	}
}

// validateAmount looks at the exponent and digit count before doing any
// arithmetic, so an input like 1e30000000 is rejected without being expanded.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}

	exp := int(amount.Exponent())
	digits := amount.NumDigits()
	if digits+exp > maxIntegerDigits {
		return errors.NewAppErrorf(errors.InvalidAmount, "amount must not exceed %s", maxAmount.StringFixed(amountScale))
	}
	if exp < -amountScale {
		// Only trailing zeros may sit past the second decimal place, and a
		// coefficient cannot have as many trailing zeros as it has digits.
		if -exp-amountScale >= digits || !amount.Equal(amount.Truncate(amountScale)) {
			return errors.NewAppErrorf(errors.InvalidAmount, "amount supports at most %d decimal places", amountScale)
		}
	}
	if amount.GreaterThan(maxAmount) {
		return errors.NewAppErrorf(errors.InvalidAmount, "amount must not exceed %s", maxAmount.StringFixed(amountScale))
	}
	return nil
}

// generateAccountNumber draws the 10-digit suffix uniformly from crypto/rand.
func generateAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%0*d", accountNumberPrefix, accountNumberDigits, n.Int64()), nil
}
