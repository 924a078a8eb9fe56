package domain

import "time"

type PurchaseRecord struct {
	ItemID    int64     `json:"item_id" db:"item_id"`
	BuyerID   string    `json:"buyer_id" db:"buyer_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Item      Item      `json:"item" db:"item"`
}

type PurchaseResult struct {
	ItemID int64
	State  PurchaseState
	Record *PurchaseRecord // set only when State is StateSuccess
}

func NewPurchaseResult(itemID int64, state PurchaseState) PurchaseResult {
	return PurchaseResult{ItemID: itemID, State: state}
}

func NewSuccessResult(record PurchaseRecord) PurchaseResult {
	return PurchaseResult{ItemID: record.ItemID, State: StateSuccess, Record: &record}
}
