package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sell request statuses. settling holds the buyer's funds while the chain call is in flight.
const (
	SellRequestPending  = "pending"
	SellRequestSettling = "settling"
	SellRequestSold     = "sold"
)

// SellRequest is a producer tender awaiting a buyer and producer confirmation.
type SellRequest struct {
	RequestID  uuid.UUID  `gorm:"column:request_id;type:uuid;primaryKey" json:"request_id"`
	ProducerID uuid.UUID  `gorm:"column:producer_id;type:uuid;not null;index" json:"producer_id"`
	HydrogenKg float64    `gorm:"column:hydrogen_kg;type:decimal(18,2);not null" json:"hydrogen_kg"`
	Price      float64    `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	Score      float64    `gorm:"column:score;type:decimal(18,2);not null;default:0" json:"score"`
	ProofDoc   string     `gorm:"column:proof_doc" json:"proof_doc"`
	Status     string     `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	BuyerID    *uuid.UUID `gorm:"column:buyer_id;type:uuid;index" json:"buyer_id"`
	TxID       *string    `gorm:"column:tx_id" json:"tx_id"`
	InvoiceID  *uuid.UUID `gorm:"column:invoice_id;type:uuid" json:"invoice_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (SellRequest) TableName() string {
	return "SellRequests"
}

func (r *SellRequest) BeforeCreate(tx *gorm.DB) error {
	if r.RequestID == uuid.Nil {
		r.RequestID = uuid.New()
	}
	return nil
}

// Total is quantity times price, rounded to cents.
func (r *SellRequest) Total() float64 {
	return Round2(r.HydrogenKg * r.Price)
}

// Invoice is the immutable receipt of one settled sell request.
type Invoice struct {
	InvoiceID     uuid.UUID `gorm:"column:invoice_id;type:uuid;primaryKey" json:"invoice_id"`
	SellRequestID uuid.UUID `gorm:"column:sell_request_id;type:uuid;uniqueIndex;not null" json:"sell_request_id"`
	ProducerID    uuid.UUID `gorm:"column:producer_id;type:uuid;not null;index" json:"producer_id"`
	BuyerID       uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	HydrogenKg    float64   `gorm:"column:hydrogen_kg;type:decimal(18,2);not null" json:"hydrogen_kg"`
	Price         float64   `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	TotalAmount   float64   `gorm:"column:total_amount;type:decimal(18,2);not null" json:"total_amount"`
	TxID          string    `gorm:"column:tx_id;not null" json:"tx_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Invoice) TableName() string {
	return "Invoices"
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.InvoiceID == uuid.Nil {
		i.InvoiceID = uuid.New()
	}
	return nil
}
