package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Settlement intent kinds.
const (
	IntentBatchMint  = "batch_mint"
	IntentPurchase   = "purchase"
	IntentConfirmBuy = "confirm_buy"
)

// Settlement intent statuses. unknown means the chain call timed out.
const (
	IntentPending   = "pending"
	IntentCompleted = "completed"
	IntentFailed    = "failed"
	IntentUnknown   = "unknown"
)

// SettlementIntent is recorded before every chain call so an interrupted operation can be resolved.
type SettlementIntent struct {
	IntentID       uuid.UUID      `gorm:"column:intent_id;type:uuid;primaryKey" json:"intent_id"`
	Kind           string         `gorm:"column:kind;type:varchar(20);not null;index;uniqueIndex:idx_intent_idem,priority:1" json:"kind"`
	ReferenceID    uuid.UUID      `gorm:"column:reference_id;type:uuid;not null;index" json:"reference_id"`
	ActorID        uuid.UUID      `gorm:"column:actor_id;type:uuid;not null;index" json:"actor_id"`
	Amount         float64        `gorm:"column:amount;type:decimal(18,2);not null;default:0" json:"amount"`
	Status         string         `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	ChainTxID      *string        `gorm:"column:chain_tx_id" json:"chain_tx_id"`
	IdempotencyKey *string        `gorm:"column:idempotency_key;uniqueIndex:idx_intent_idem,priority:2" json:"idempotency_key,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	LastError      *string        `gorm:"column:last_error" json:"last_error,omitempty"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (SettlementIntent) TableName() string {
	return "SettlementIntents"
}

func (i *SettlementIntent) BeforeCreate(tx *gorm.DB) error {
	if i.IntentID == uuid.Nil {
		i.IntentID = uuid.New()
	}
	return nil
}

// Open reports whether the intent still needs resolution.
func (i *SettlementIntent) Open() bool {
	return i.Status == IntentPending || i.Status == IntentUnknown
}
