package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"wallet-service/internal/domain"
)

type AccountRepositoryMock struct {
	mock.Mock
}

func (m *AccountRepositoryMock) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	args := m.Called(ctx, account)
	switch v := args.Get(0).(type) {
	case func(context.Context, *domain.Account) *domain.Account:
		return v(ctx, account), args.Error(1)
	case *domain.Account:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AccountRepositoryMock) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, id)
	switch v := args.Get(0).(type) {
	case func(context.Context, uuid.UUID) *domain.Account:
		return v(ctx, id), args.Error(1)
	case *domain.Account:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AccountRepositoryMock) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Account, error) {
	args := m.Called(ctx, ownerID)
	if v := args.Get(0); v != nil {
		return v.([]*domain.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AccountRepositoryMock) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	args := m.Called(ctx, account)
	switch v := args.Get(0).(type) {
	case func(context.Context, *domain.Account) *domain.Account:
		return v(ctx, account), args.Error(1)
	case *domain.Account:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Exists(ctx context.Context, ownerID int64, cred domain.Credential) (domain.VerificationResult, error) {
	args := m.Called(ctx, ownerID, cred)
	return args.Get(0).(domain.VerificationResult), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, event *domain.AccountEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
