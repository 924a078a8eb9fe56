package handler

import (
	"context"
	"time"

	"github.com/rl1809/seckill/internal/core/domain"
)

// SeckillUseCase is the part of the engine exposed over the wire.
type SeckillUseCase interface {
	Expose(ctx context.Context, itemID int64) (domain.Exposure, error)
	GetItem(ctx context.Context, itemID int64) (*domain.Item, error)
	ListItems(ctx context.Context, offset, limit int) ([]domain.Item, error)
	ExecutePurchase(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult
	ExecutePurchaseProcedure(ctx context.Context, itemID int64, buyerID, accessToken string) domain.PurchaseResult
}

const (
	defaultOffset = 0
	defaultLimit  = 10
)

type ExposureResponse struct {
	Exposed bool      `json:"exposed"`
	State   string    `json:"state"`
	ItemID  int64     `json:"item_id"`
	Token   string    `json:"token,omitempty"`
	Now     time.Time `json:"now"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

func newExposureResponse(e domain.Exposure) ExposureResponse {
	return ExposureResponse{
		Exposed: e.Exposed(),
		State:   e.State.String(),
		ItemID:  e.ItemID,
		Token:   e.Token,
		Now:     e.Now,
		Start:   e.Start,
		End:     e.End,
	}
}

type ExecutionResponse struct {
	ItemID    int64                  `json:"item_id"`
	State     string                 `json:"state"`
	StateCode int                    `json:"state_code"`
	StateInfo string                 `json:"state_info"`
	Record    *domain.PurchaseRecord `json:"record,omitempty"`
}

func newExecutionResponse(r domain.PurchaseResult) ExecutionResponse {
	return ExecutionResponse{
		ItemID:    r.ItemID,
		State:     r.State.String(),
		StateCode: int(r.State),
		StateInfo: r.State.Info(),
		Record:    r.Record,
	}
}

func execute(ctx context.Context, uc SeckillUseCase, useProcedure bool, itemID int64, buyerID, accessToken string) domain.PurchaseResult {
	if useProcedure {
		return uc.ExecutePurchaseProcedure(ctx, itemID, buyerID, accessToken)
	}
	return uc.ExecutePurchase(ctx, itemID, buyerID, accessToken)
}
