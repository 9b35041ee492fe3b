// Package models defines the persistence records for search history and
// the transactional outbox.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox message statuses.
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// SearchRecord is the audit row written after each completed match run.
// It is write-only bookkeeping; the interactive path never reads it.
type SearchRecord struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	SessionID    string         `gorm:"type:varchar(64);index"`
	Keywords     string         `gorm:"type:varchar(255)"`
	Location     string         `gorm:"type:varchar(255)"`
	ResumeURI    string         `gorm:"type:varchar(512)"`
	ListingCount int            `gorm:"not null;default:0"`
	ResultCount  int            `gorm:"not null;default:0"`
	TopScore     float64        `gorm:"not null;default:0"`
	Results      datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
}

// TableName overrides the default pluralized name.
func (SearchRecord) TableName() string {
	return "search_records"
}

// OutboxMessage is one event awaiting publication to the message queue.
// Rows are written in the same transaction as their SearchRecord and
// relayed asynchronously.
type OutboxMessage struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	EventType  string         `gorm:"type:varchar(100);not null"`
	Exchange   string         `gorm:"type:varchar(100);not null"`
	RoutingKey string         `gorm:"type:varchar(100);not null"`
	Payload    datatypes.JSON `gorm:"type:json;not null"`
	Status     string         `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Attempts   int            `gorm:"not null;default:0"`
	LastError  string         `gorm:"type:varchar(512)"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

// TableName overrides the default pluralized name.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
