package domain

// PurchaseState codes are shared with the execute_seckill stored procedure.
type PurchaseState int

const (
	StateSuccess          PurchaseState = 1
	StateSoldOut          PurchaseState = 0
	StateAlreadyPurchased PurchaseState = -1
	StateInternalError    PurchaseState = -2
	StateTokenInvalid     PurchaseState = -3
)

func (s PurchaseState) String() string {
	switch s {
	case StateSuccess:
		return "SUCCESS"
	case StateSoldOut:
		return "SOLD_OUT"
	case StateAlreadyPurchased:
		return "ALREADY_PURCHASED"
	case StateTokenInvalid:
		return "TOKEN_INVALID"
	default:
		return "INTERNAL_ERROR"
	}
}

// Info is the buyer-facing description of the state.
func (s PurchaseState) Info() string {
	switch s {
	case StateSuccess:
		return "purchase succeeded"
	case StateSoldOut:
		return "sale closed or sold out"
	case StateAlreadyPurchased:
		return "item already purchased"
	case StateTokenInvalid:
		return "access token rejected"
	default:
		return "internal error"
	}
}

// StateOf maps a procedure result code to a state. Unknown codes are internal errors.
func StateOf(code int) PurchaseState {
	switch s := PurchaseState(code); s {
	case StateSuccess, StateSoldOut, StateAlreadyPurchased, StateTokenInvalid:
		return s
	default:
		return StateInternalError
	}
}

type ExposureState int

const (
	ExposureNotYetOpen ExposureState = iota
	ExposureOpen
	ExposureClosed
)

func (s ExposureState) String() string {
	switch s {
	case ExposureNotYetOpen:
		return "NOT_YET_OPEN"
	case ExposureOpen:
		return "OPEN"
	default:
		return "CLOSED"
	}
}
