package models

import "time"

// Todo is a persisted to-do entry. ID and CreatedAt are assigned by the store.
type Todo struct {
	ID        int64
	Value     TodoValue
	CreatedAt time.Time
}
