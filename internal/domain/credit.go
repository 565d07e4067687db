package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Credit statuses. MINTED -> LISTED -> SOLD -> RETIRED; REVOKED from MINTED or LISTED.
const (
	CreditMinted  = "MINTED"
	CreditListed  = "LISTED"
	CreditSold    = "SOLD"
	CreditRetired = "RETIRED"
	CreditRevoked = "REVOKED"
)

const (
	OwnerProducer = "PRODUCER"
	OwnerBuyer    = "BUYER"
)

// Credit is a tokenized amount of verified hydrogen. Amount never changes after mint.
type Credit struct {
	CreditID          uuid.UUID  `gorm:"column:credit_id;type:uuid;primaryKey" json:"credit_id"`
	BatchRef          string     `gorm:"column:batch_ref;uniqueIndex;not null" json:"batch_ref"`
	PartID            string     `gorm:"column:part_id;not null" json:"part_id"`
	ProducerID        uuid.UUID  `gorm:"column:producer_id;type:uuid;not null;index" json:"producer_id"`
	ProducerName      string     `gorm:"column:producer_name" json:"producer_name"`
	ContentID         string     `gorm:"column:content_id;not null" json:"content_id"`
	TokenID           string     `gorm:"column:token_id;not null" json:"token_id"`
	HydrogenKg        float64    `gorm:"column:hydrogen_kg;type:decimal(18,2);not null" json:"hydrogen_kg"`
	PurityPct         float64    `gorm:"column:purity_pct;type:decimal(18,2)" json:"purity_pct"`
	RenewableSharePct float64    `gorm:"column:renewable_share_pct;type:decimal(18,2)" json:"renewable_share_pct"`
	Amount            int64      `gorm:"column:amount;not null" json:"amount"`
	Status            string     `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	OwnerType         string     `gorm:"column:owner_type;type:varchar(20);not null" json:"owner_type"`
	OwnerID           *uuid.UUID `gorm:"column:owner_id;type:uuid;index" json:"owner_id"`
	MintTxID          string     `gorm:"column:mint_tx_id;not null" json:"mint_tx_id"`
	SaleTxID          *string    `gorm:"column:sale_tx_id" json:"sale_tx_id"`
	RetireTxID        *string    `gorm:"column:retire_tx_id" json:"retire_tx_id"`
	ListPrice         *float64   `gorm:"column:list_price;type:decimal(18,2)" json:"list_price"`
	RetiredAt         *time.Time `gorm:"column:retired_at" json:"retired_at"`
	RetiredBy         *string    `gorm:"column:retired_by" json:"retired_by"`
	RevokedAt         *time.Time `gorm:"column:revoked_at" json:"revoked_at"`
	RevokeReason      *string    `gorm:"column:revoke_reason" json:"revoke_reason"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Credit) TableName() string {
	return "Credits"
}

func (c *Credit) BeforeCreate(tx *gorm.DB) error {
	if c.CreditID == uuid.Nil {
		c.CreditID = uuid.New()
	}
	return nil
}

// Listing statuses. settling marks a purchase whose chain transfer is in flight.
const (
	ListingActive   = "active"
	ListingSettling = "settling"
	ListingSoldOut  = "sold_out"
)

// MarketplaceListing offers one credit at a price.
type MarketplaceListing struct {
	ListingID       uuid.UUID `gorm:"column:listing_id;type:uuid;primaryKey" json:"listing_id"`
	CreditID        uuid.UUID `gorm:"column:credit_id;type:uuid;not null;index" json:"credit_id"`
	ProducerID      uuid.UUID `gorm:"column:producer_id;type:uuid;not null;index" json:"producer_id"`
	Price           float64   `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	AvailableAmount int64     `gorm:"column:available_amount;not null" json:"available_amount"`
	Status          string    `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (MarketplaceListing) TableName() string {
	return "MarketplaceListings"
}

func (l *MarketplaceListing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	return nil
}

// CreditEvent is an append-only audit row for a credit lifecycle transition.
type CreditEvent struct {
	EventID   uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	CreditID  uuid.UUID      `gorm:"column:credit_id;type:uuid;not null;index" json:"credit_id"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb;not null" json:"event_data"`
	ActorID   *uuid.UUID     `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	CreatedAt time.Time      `json:"created_at"`
}

func (CreditEvent) TableName() string {
	return "CreditEvents"
}

func (e *CreditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}

// PurchaseLog is the buyer-facing record of a marketplace purchase.
type PurchaseLog struct {
	LogID        uuid.UUID `gorm:"column:log_id;type:uuid;primaryKey" json:"log_id"`
	TxID         string    `gorm:"column:tx_id;uniqueIndex;not null" json:"tx_id"`
	ListingID    uuid.UUID `gorm:"column:listing_id;type:uuid;not null" json:"listing_id"`
	CreditID     uuid.UUID `gorm:"column:credit_id;type:uuid;not null" json:"credit_id"`
	BuyerID      uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	BuyerName    string    `gorm:"column:buyer_name" json:"buyer_name"`
	ProducerID   uuid.UUID `gorm:"column:producer_id;type:uuid;not null;index" json:"producer_id"`
	ProducerName string    `gorm:"column:producer_name" json:"producer_name"`
	Coins        int64     `gorm:"column:coins;not null" json:"coins"`
	HydrogenKg   float64   `gorm:"column:hydrogen_kg;type:decimal(18,2);not null" json:"hydrogen_kg"`
	Price        float64   `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	IsConfirmed  bool      `gorm:"column:is_confirmed;not null;default:false" json:"is_confirmed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (PurchaseLog) TableName() string {
	return "PurchaseLogs"
}

func (p *PurchaseLog) BeforeCreate(tx *gorm.DB) error {
	if p.LogID == uuid.Nil {
		p.LogID = uuid.New()
	}
	return nil
}
