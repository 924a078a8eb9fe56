package domain

import "time"

type Item struct {
	ID        int64     `json:"id" db:"item_id"`
	Name      string    `json:"name" db:"name"`
	Stock     int       `json:"stock" db:"stock"` // remaining units
	StartTime time.Time `json:"start_time" db:"start_time"`
	EndTime   time.Time `json:"end_time" db:"end_time"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OpenAt reports whether t falls inside the sale window [StartTime, EndTime).
func (i Item) OpenAt(t time.Time) bool {
	return !t.Before(i.StartTime) && t.Before(i.EndTime)
}
