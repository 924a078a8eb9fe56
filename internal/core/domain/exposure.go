package domain

import "time"

// Exposure is the answer to a token request. Token is only set when the sale is open.
type Exposure struct {
	ItemID int64         `json:"item_id"`
	State  ExposureState `json:"-"`
	Token  string        `json:"token,omitempty"`
	Now    time.Time     `json:"now"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
}

func (e Exposure) Exposed() bool {
	return e.State == ExposureOpen
}
