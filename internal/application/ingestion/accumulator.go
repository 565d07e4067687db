package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Accumulator pre-aggregates raw readings per producer as a running mean.
type Accumulator interface {
	// Record refuses with SettlementInProgress while a batch mint holds the aggregate.
	Record(ctx context.Context, producerID uuid.UUID, r domain.Sample) (*domain.IoTAggregate, error)
	// Latest returns the current aggregate, nil when no reading is pending.
	Latest(ctx context.Context, producerID uuid.UUID) (*domain.IoTAggregate, error)
	Reset(ctx context.Context, producerID uuid.UUID) error
}

// GormAccumulator keeps aggregates in the IoTAggregates table. Each Record is a single UPDATE,
// so concurrent readings for one producer never lose an update.
type GormAccumulator struct {
	DB *gorm.DB
}

var meanColumns = []string{"hydrogen_kg", "purity_pct", "renewable_share_pct", "power_consumption_kwh", "renewable_power_kwh"}

func (a *GormAccumulator) Record(ctx context.Context, producerID uuid.UUID, r domain.Sample) (*domain.IoTAggregate, error) {
	if producerID == uuid.Nil {
		return nil, errors.New("producer_id is required")
	}
	values := []float64{r.HydrogenKg, r.PurityPct, r.RenewableSharePct, r.PowerConsumptionKWh, r.RenewablePowerKWh}
	var agg domain.IoTAggregate
	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := domain.IoTAggregate{ProducerID: producerID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		// newMean = (oldMean * n + v) / (n + 1); SET expressions read the pre-update row.
		updates := map[string]interface{}{
			"sample_count": gorm.Expr("sample_count + 1"),
			"updated_at":   time.Now(),
		}
		for i, col := range meanColumns {
			updates[col] = gorm.Expr(fmt.Sprintf("(%s * sample_count + ?) / (sample_count + 1)", col), values[i])
		}
		// A claimed aggregate is frozen until its batch resolves.
		res := tx.Model(&domain.IoTAggregate{}).
			Where("producer_id = ? AND pending_intent_id IS NULL", producerID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.ErrSettlementInProgress()
		}
		return tx.Where("producer_id = ?", producerID).First(&agg).Error
	})
	if _, ok := apperror.As(err); ok {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("record reading: %w", err)
	}
	return &agg, nil
}

func (a *GormAccumulator) Latest(ctx context.Context, producerID uuid.UUID) (*domain.IoTAggregate, error) {
	var agg domain.IoTAggregate
	err := a.DB.WithContext(ctx).Where("producer_id = ?", producerID).First(&agg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if agg.SampleCount == 0 {
		return nil, nil
	}
	return &agg, nil
}

func (a *GormAccumulator) Reset(ctx context.Context, producerID uuid.UUID) error {
	return ResetTx(a.DB.WithContext(ctx), producerID)
}

// ResetTx zeroes every mean and the sample counter.
func ResetTx(tx *gorm.DB, producerID uuid.UUID) error {
	return tx.Model(&domain.IoTAggregate{}).Where("producer_id = ?", producerID).Updates(resetUpdates()).Error
}

func resetUpdates() map[string]interface{} {
	updates := map[string]interface{}{"sample_count": 0, "updated_at": time.Now()}
	for _, col := range meanColumns {
		updates[col] = 0
	}
	return updates
}
