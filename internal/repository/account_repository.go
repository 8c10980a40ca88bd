package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wallet-service/internal/domain"
	"wallet-service/internal/errors"
)

const accountNumberConstraint = "idx_accounts_account_number"

const accountColumns = `id, owner_id, account_number, account_type, balance, active, version, created_at, updated_at`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, owner_id, account_number, account_type, balance, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	stored := *account
	stored.ID = uuid.New()
	stored.Version = 1

	_, err := r.db.ExecContext(ctx,
		query,
		stored.ID,
		stored.OwnerID,
		stored.AccountNumber,
		stored.AccountType,
		stored.Balance.String(),
		stored.Active,
		stored.Version,
		stored.CreatedAt,
		stored.UpdatedAt,
	)

	if err != nil {
		if constraint, ok := uniqueViolationConstraint(err); ok && constraint == accountNumberConstraint {
			r.logger.Warn("Duplicate account number", "account_number", stored.AccountNumber)
			return nil, errors.ErrDuplicateAccountNumber
		}
		r.logger.Error("Failed to create account", "owner_id", stored.OwnerID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	r.logger.Info("Account created successfully", "account_id", stored.ID, "owner_id", stored.OwnerID)
	return &stored, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("Account not found", "account_id", id)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "account_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}

	return account, nil
}

func (r *accountRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("Failed to list accounts", "owner_id", ownerID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			r.logger.Error("Failed to scan account", "owner_id", ownerID, "error", err)
			return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
	}

	return accounts, nil
}

// Save writes balance and updated_at only when the stored version still
// matches account.Version, bumping the version on success.
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2, version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING version
	`

	var newVersion int64
	err := r.db.QueryRowContext(ctx, query,
		account.Balance.String(),
		account.UpdatedAt,
		account.ID,
		account.Version,
	).Scan(&newVersion)

	if err != nil {
		if !stderrors.Is(err, sql.ErrNoRows) {
			r.logger.Error("Failed to update account", "account_id", account.ID, "error", err)
			return nil, errors.NewAppError(errors.InternalError, "failed to update account").WithDetails(err.Error())
		}

		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, account.ID).Scan(&exists); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to update account").WithDetails(err.Error())
		}
		if !exists {
			r.logger.Warn("No account found to update", "account_id", account.ID)
			return nil, errors.ErrAccountNotFound
		}

		r.logger.Warn("Stale account version", "account_id", account.ID, "version", account.Version)
		return nil, errors.ErrConflict
	}

	saved := *account
	saved.Version = newVersion
	r.logger.Info("Account balance updated", "account_id", account.ID, "new_balance", account.Balance, "version", newVersion)
	return &saved, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&account.AccountNumber,
		&account.AccountType,
		&balanceStr,
		&account.Active,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, err
	}

	account.Balance = balance
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}
