package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// LedgerEntry is one immutable movement. For an actor, entries ordered by Sequence satisfy
// BalanceAfter[n] = BalanceAfter[n-1] +/- Magnitude starting from zero.
type LedgerEntry struct {
	EntryID          uuid.UUID  `gorm:"column:entry_id;type:uuid;primaryKey" json:"entry_id"`
	ActorID          uuid.UUID  `gorm:"column:actor_id;type:uuid;not null;uniqueIndex:idx_ledger_actor_seq,priority:1" json:"actor_id"`
	Sequence         int64      `gorm:"column:sequence;not null;uniqueIndex:idx_ledger_actor_seq,priority:2" json:"sequence"`
	Direction        string     `gorm:"column:direction;type:varchar(10);not null" json:"direction"`
	Magnitude        float64    `gorm:"column:magnitude;type:decimal(18,2);not null" json:"magnitude"`
	Reason           string     `gorm:"column:reason;not null" json:"reason"`
	RelatedRequestID *uuid.UUID `gorm:"column:related_request_id;type:uuid" json:"related_request_id"`
	BalanceAfter     float64    `gorm:"column:balance_after;type:decimal(18,2);not null" json:"balance_after"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "LedgerEntries"
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.EntryID == uuid.Nil {
		e.EntryID = uuid.New()
	}
	return nil
}

// Signed returns the magnitude with the direction's sign.
func (e *LedgerEntry) Signed() float64 {
	if e.Direction == DirectionDebit {
		return -e.Magnitude
	}
	return e.Magnitude
}

// LedgerHead holds an actor's current balance and entry count. Appends increment it atomically.
type LedgerHead struct {
	ActorID    uuid.UUID `gorm:"column:actor_id;type:uuid;primaryKey" json:"actor_id"`
	Balance    float64   `gorm:"column:balance;type:decimal(18,2);not null;default:0" json:"balance"`
	EntryCount int64     `gorm:"column:entry_count;not null;default:0" json:"entry_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (LedgerHead) TableName() string {
	return "LedgerHeads"
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
