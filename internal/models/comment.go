package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment is a user note attached to an auction by lot number. Comments
// outlive reconciliation: they are not deleted when a listing closes.
type Comment struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	LotNumber string    `gorm:"type:text;index;not null"`
	Author    string    `gorm:"type:text;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamp;not null"`
}

func (Comment) TableName() string {
	return "comments"
}
