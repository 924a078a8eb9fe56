package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rl1809/seckill/internal/core/domain"
)

type useCaseMock struct {
	mock.Mock
}

func (m *useCaseMock) Expose(ctx context.Context, itemID int64) (domain.Exposure, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).(domain.Exposure), args.Error(1)
}

func (m *useCaseMock) GetItem(ctx context.Context, itemID int64) (*domain.Item, error) {
	args := m.Called(ctx, itemID)
	item, _ := args.Get(0).(*domain.Item)
	return item, args.Error(1)
}

func (m *useCaseMock) ListItems(ctx context.Context, offset, limit int) ([]domain.Item, error) {
	args := m.Called(ctx, offset, limit)
	items, _ := args.Get(0).([]domain.Item)
	return items, args.Error(1)
}

func (m *useCaseMock) ExecutePurchase(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult {
	return m.Called(ctx, itemID, buyerID, accessToken).Get(0).(domain.PurchaseResult)
}

func (m *useCaseMock) ExecutePurchaseProcedure(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult {
	return m.Called(ctx, itemID, buyerID, accessToken).Get(0).(domain.PurchaseResult)
}
