package port

import (
	"context"

	"github.com/rl1809/seckill/internal/core/domain"
)

type PurchasePublisher interface {
	PublishPurchase(ctx context.Context, record domain.PurchaseRecord) error
}
