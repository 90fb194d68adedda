package model

import (
	"time"
)

// Base contains the identity, audit and soft-delete fields shared by every entity.
// The persistence layer owns all four; callers only read them.
type Base struct {
	ID        int64      `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	IsDeleted bool       `json:"-" db:"is_deleted"`
}

// Meta returns the embedded base record.
func (b *Base) Meta() *Base {
	return b
}

// HasSoftDelete is implemented by every persisted entity through Base.
type HasSoftDelete interface {
	Meta() *Base
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
