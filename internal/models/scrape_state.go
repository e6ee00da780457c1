package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScrapeState keeps one bookkeeping row per source so the scheduler can
// report job health and catch up missed triggers after a restart.
type ScrapeState struct {
	Source        string         `gorm:"primaryKey;type:text"`
	LastSuccessAt *time.Time     `gorm:"type:timestamp"`
	LastAttemptAt *time.Time     `gorm:"type:timestamp"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (ScrapeState) TableName() string {
	return "scrape_state"
}
