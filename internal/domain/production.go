package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RenewableBonusThreshold is the renewable share (%) at or above which a batch earns the bonus.
const (
	RenewableBonusThreshold = 95.0
	RenewableBonusPoints    = 10.0
	KgPerCoin               = 1000.0
)

// Sample is one aggregated IoT reading set.
type Sample struct {
	HydrogenKg          float64 `json:"hydrogen_kg"`
	PurityPct           float64 `json:"purity_pct"`
	RenewableSharePct   float64 `json:"renewable_share_pct"`
	PowerConsumptionKWh float64 `json:"power_consumption_kwh"`
	RenewablePowerKWh   float64 `json:"renewable_power_kwh"`
}

// Score is 1 point per kg plus the renewable bonus.
func (s Sample) Score() float64 {
	score := s.HydrogenKg
	if s.RenewableSharePct >= RenewableBonusThreshold {
		score += RenewableBonusPoints
	}
	return score
}

// ProductionBatch is an immutable record of one submitted sample.
type ProductionBatch struct {
	BatchID             uuid.UUID      `gorm:"column:batch_id;type:uuid;primaryKey" json:"batch_id"`
	ProducerID          uuid.UUID      `gorm:"column:producer_id;type:uuid;not null;index" json:"producer_id"`
	HydrogenKg          float64        `gorm:"column:hydrogen_kg;type:decimal(18,2);not null" json:"hydrogen_kg"`
	PurityPct           float64        `gorm:"column:purity_pct;type:decimal(18,2);not null" json:"purity_pct"`
	RenewableSharePct   float64        `gorm:"column:renewable_share_pct;type:decimal(18,2);not null" json:"renewable_share_pct"`
	PowerConsumptionKWh float64        `gorm:"column:power_consumption_kwh;type:decimal(18,2);not null" json:"power_consumption_kwh"`
	RenewablePowerKWh   float64        `gorm:"column:renewable_power_kwh;type:decimal(18,2);not null" json:"renewable_power_kwh"`
	Score               float64        `gorm:"column:score;type:decimal(18,2);not null" json:"score"`
	MintedCoins         float64        `gorm:"column:minted_coins;type:decimal(18,2);not null" json:"minted_coins"`
	ContentID           string         `gorm:"column:content_id;not null" json:"content_id"`
	MintTxID            string         `gorm:"column:mint_tx_id;not null" json:"mint_tx_id"`
	IntentID            uuid.UUID      `gorm:"column:intent_id;type:uuid;uniqueIndex" json:"intent_id"`
	Payload             datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt           time.Time      `json:"created_at"`
}

func (ProductionBatch) TableName() string {
	return "ProductionBatches"
}

func (b *ProductionBatch) BeforeCreate(tx *gorm.DB) error {
	if b.BatchID == uuid.Nil {
		b.BatchID = uuid.New()
	}
	return nil
}

// IoTAggregate is the per-producer running mean of raw readings; a buffer, not history.
type IoTAggregate struct {
	ProducerID          uuid.UUID  `gorm:"column:producer_id;type:uuid;primaryKey" json:"producer_id"`
	HydrogenKg          float64    `gorm:"column:hydrogen_kg;not null;default:0" json:"hydrogen_kg"`
	PurityPct           float64    `gorm:"column:purity_pct;not null;default:0" json:"purity_pct"`
	RenewableSharePct   float64    `gorm:"column:renewable_share_pct;not null;default:0" json:"renewable_share_pct"`
	PowerConsumptionKWh float64    `gorm:"column:power_consumption_kwh;not null;default:0" json:"power_consumption_kwh"`
	RenewablePowerKWh   float64    `gorm:"column:renewable_power_kwh;not null;default:0" json:"renewable_power_kwh"`
	SampleCount         int64      `gorm:"column:sample_count;not null;default:0" json:"sample_count"`
	// PendingIntentID claims the aggregate while its batch mint is unresolved.
	PendingIntentID     *uuid.UUID `gorm:"column:pending_intent_id;type:uuid" json:"pending_intent_id"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (IoTAggregate) TableName() string {
	return "IoTAggregates"
}

func (a *IoTAggregate) Sample() Sample {
	return Sample{
		HydrogenKg:          a.HydrogenKg,
		PurityPct:           a.PurityPct,
		RenewableSharePct:   a.RenewableSharePct,
		PowerConsumptionKWh: a.PowerConsumptionKWh,
		RenewablePowerKWh:   a.RenewablePowerKWh,
	}
}

// ApprovedSensor is a device allowed to back a mint. ApprovedHash = hex(sha256(secret + part_id)).
type ApprovedSensor struct {
	SensorID     uuid.UUID `gorm:"column:sensor_id;type:uuid;primaryKey" json:"sensor_id"`
	PartID       string    `gorm:"column:part_id;uniqueIndex;not null" json:"part_id"`
	ApprovedHash string    `gorm:"column:approved_hash;not null" json:"-"`
	ProducerID   uuid.UUID `gorm:"column:producer_id;type:uuid;not null;index" json:"producer_id"`
	Active       bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ApprovedSensor) TableName() string {
	return "ApprovedSensors"
}

func (s *ApprovedSensor) BeforeCreate(tx *gorm.DB) error {
	if s.SensorID == uuid.Nil {
		s.SensorID = uuid.New()
	}
	return nil
}
