package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/application/intents"
	"greencoin-backend/internal/application/ledger"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/infrastructure/metrics"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"
	"greencoin-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB          *gorm.DB
	Accumulator Accumulator
	Store       external.ContentStore
	Chain       external.Chain
	Notifier    notify.Publisher
	Log         zerolog.Logger
}

// batchPayload is what goes to the content store and into the intent for recovery.
type batchPayload struct {
	ProducerID  uuid.UUID     `json:"producer_id"`
	Sample      domain.Sample `json:"sample"`
	SampleCount int64         `json:"sample_count"`
	Score       float64       `json:"score"`
	ContentID   string        `json:"content_id,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// RecordReading folds one raw reading into the producer's running mean.
func (s *Service) RecordReading(ctx context.Context, producerID uuid.UUID, r domain.Sample) (*domain.IoTAggregate, error) {
	for _, v := range []float64{r.HydrogenKg, r.PurityPct, r.RenewableSharePct, r.PowerConsumptionKWh, r.RenewablePowerKWh} {
		if !validation.IsNonNegative(v) {
			return nil, apperror.Validation("Readings must be non-negative numbers")
		}
	}
	if r.PurityPct > 100 || r.RenewableSharePct > 100 {
		return nil, apperror.Validation("Percentages must be between 0 and 100")
	}
	if _, err := actors.LoadActive(s.DB.WithContext(ctx), producerID, constants.Producer); err != nil {
		return nil, err
	}
	return s.Accumulator.Record(ctx, producerID, r)
}

// Latest returns the pending aggregate or NoDataAvailable.
func (s *Service) Latest(ctx context.Context, producerID uuid.UUID) (*domain.IoTAggregate, error) {
	agg, err := s.Accumulator.Latest(ctx, producerID)
	if err != nil {
		return nil, fmt.Errorf("read aggregate: %w", err)
	}
	if agg == nil {
		return nil, apperror.ErrNoDataAvailable()
	}
	return agg, nil
}

// SubmitBatch turns the pending aggregate into a ProductionBatch. Order: claim + intent, content
// store, chain mint, then one transaction for batch, ledger credit, score and reset. Nothing but the
// intent is written before the mint succeeds.
func (s *Service) SubmitBatch(ctx context.Context, producerID uuid.UUID) (*domain.ProductionBatch, error) {
	if _, err := actors.LoadActive(s.DB.WithContext(ctx), producerID, constants.Producer); err != nil {
		return nil, err
	}
	agg, err := s.Latest(ctx, producerID)
	if err != nil {
		return nil, err
	}
	sample := agg.Sample()
	if !validation.IsPositive(sample.HydrogenKg) {
		return nil, apperror.Validation("Pending sample has no hydrogen production")
	}
	payload := batchPayload{
		ProducerID:  producerID,
		Sample:      sample,
		SampleCount: agg.SampleCount,
		Score:       domain.Round2(sample.Score()),
		SubmittedAt: time.Now().UTC(),
	}

	var intent *domain.SettlementIntent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		intentID := uuid.New()
		res := tx.Model(&domain.IoTAggregate{}).
			Where("producer_id = ? AND pending_intent_id IS NULL AND sample_count > 0", producerID).
			Update("pending_intent_id", intentID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.ErrSettlementInProgress()
		}
		var err error
		intent, err = intents.Begin(tx, intents.BeginInput{
			IntentID:    intentID,
			Kind:        domain.IntentBatchMint,
			ReferenceID: producerID,
			ActorID:     producerID,
			Amount:      sample.HydrogenKg,
			Payload:     payload,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(payload)
	contentID, err := s.Store.Store(ctx, body)
	if err != nil {
		s.abort(ctx, intent, err)
		metrics.RecordSettlement(domain.IntentBatchMint, "failed")
		if external.IsTimeout(err) {
			return nil, apperror.ErrUpstreamTimeout(err)
		}
		return nil, apperror.ErrUpstreamStoreFailure(err)
	}
	payload.ContentID = contentID
	if err := intents.SetPayload(s.DB.WithContext(ctx), intent.IntentID, payload); err != nil {
		s.abort(ctx, intent, err)
		return nil, apperror.Internal(err)
	}

	txID, err := s.Chain.Mint(ctx, external.MintRequest{
		Reference:   intent.IntentID.String(),
		Beneficiary: producerID,
		Amount:      sample.HydrogenKg,
		Proof:       contentID,
	})
	if err != nil {
		if external.IsTimeout(err) {
			if uerr := intents.MarkUnknown(s.DB.WithContext(context.WithoutCancel(ctx)), intent.IntentID, err); uerr != nil {
				s.Log.Error().Err(uerr).Str("intent_id", intent.IntentID.String()).Msg("batch: mark intent unknown failed")
			}
			metrics.RecordSettlement(domain.IntentBatchMint, "unknown")
			s.Log.Warn().Err(err).Str("intent_id", intent.IntentID.String()).Msg("batch: mint timed out, left for reconciliation")
			return nil, apperror.ErrUpstreamTimeout(err)
		}
		s.abort(ctx, intent, err)
		metrics.RecordSettlement(domain.IntentBatchMint, "failed")
		return nil, apperror.ErrUpstreamMintFailure(err)
	}

	batch, err := s.complete(ctx, intent.IntentID, payload, txID)
	if err != nil {
		s.Log.Error().Err(err).Str("intent_id", intent.IntentID.String()).Str("tx_id", txID).Msg("batch: persist after mint failed, left for reconciliation")
		return nil, apperror.Internal(err)
	}
	metrics.RecordSettlement(domain.IntentBatchMint, "completed")
	s.afterBatch(ctx, batch)
	return batch, nil
}

func (s *Service) complete(ctx context.Context, intentID uuid.UUID, payload batchPayload, txID string) (*domain.ProductionBatch, error) {
	raw, _ := json.Marshal(payload)
	batch := &domain.ProductionBatch{
		ProducerID:          payload.ProducerID,
		HydrogenKg:          payload.Sample.HydrogenKg,
		PurityPct:           payload.Sample.PurityPct,
		RenewableSharePct:   payload.Sample.RenewableSharePct,
		PowerConsumptionKWh: payload.Sample.PowerConsumptionKWh,
		RenewablePowerKWh:   payload.Sample.RenewablePowerKWh,
		Score:               payload.Score,
		MintedCoins:         payload.Sample.HydrogenKg,
		ContentID:           payload.ContentID,
		MintTxID:            txID,
		IntentID:            intentID,
		Payload:             datatypes.JSON(raw),
	}
	var entry *domain.LedgerEntry
	err := s.DB.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := intents.Complete(tx, intentID, txID); err != nil {
			return err
		}
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		var err error
		if entry, err = ledger.AppendTx(tx, ledger.AppendInput{
			ActorID:   payload.ProducerID,
			Direction: domain.DirectionCredit,
			Magnitude: payload.Score,
			Reason:    "Generated " + strconv.FormatFloat(payload.Score, 'f', -1, 64) + " Green Credit Points",
		}); err != nil {
			return err
		}
		if err := tx.Model(&domain.Actor{}).Where("actor_id = ?", payload.ProducerID).
			Update("score", gorm.Expr("score + ?", payload.Score)).Error; err != nil {
			return fmt.Errorf("update producer score: %w", err)
		}
		updates := resetUpdates()
		updates["pending_intent_id"] = nil
		return tx.Model(&domain.IoTAggregate{}).
			Where("producer_id = ? AND pending_intent_id = ?", payload.ProducerID, intentID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("producer_id", payload.ProducerID.String()).Str("batch_id", batch.BatchID.String()).
		Float64("score", batch.Score).Str("tx_id", txID).Msg("batch submitted")
	ledger.Announce(ctx, s.Notifier, s.Log, entry)
	return batch, nil
}

func (s *Service) abort(ctx context.Context, intent *domain.SettlementIntent, reason error) {
	err := s.DB.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := intents.Fail(tx, intent.IntentID, reason); err != nil {
			return err
		}
		return releaseClaim(tx, intent.ActorID, intent.IntentID)
	})
	if err != nil && !errors.Is(err, intents.ErrClosed) {
		s.Log.Error().Err(err).Str("intent_id", intent.IntentID.String()).Msg("batch: abort failed")
	}
	s.Log.Warn().Err(reason).Str("producer_id", intent.ActorID.String()).Msg("batch: aborted")
}

func releaseClaim(tx *gorm.DB, producerID, intentID uuid.UUID) error {
	return tx.Model(&domain.IoTAggregate{}).
		Where("producer_id = ? AND pending_intent_id = ?", producerID, intentID).
		Update("pending_intent_id", nil).Error
}

func (s *Service) afterBatch(ctx context.Context, batch *domain.ProductionBatch) {
	notify.Send(ctx, s.Notifier, s.Log, notify.Event{Type: notify.BatchCreated, ActorID: batch.ProducerID.String(), Data: batch})
}

// CompleteIntent finishes a batch mint the chain confirmed after the request gave up.
func (s *Service) CompleteIntent(ctx context.Context, intent *domain.SettlementIntent, txID string) error {
	var payload batchPayload
	if err := intents.Decode(intent, &payload); err != nil {
		return err
	}
	if payload.ContentID == "" {
		return fmt.Errorf("intent %s: mint confirmed without content id", intent.IntentID)
	}
	batch, err := s.complete(ctx, intent.IntentID, payload, txID)
	if err != nil {
		return err
	}
	s.afterBatch(ctx, batch)
	return nil
}

// AbortIntent fails a batch mint the chain never recorded. The aggregate is kept for a retry.
func (s *Service) AbortIntent(ctx context.Context, intent *domain.SettlementIntent, reason error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := intents.Fail(tx, intent.IntentID, reason); err != nil {
			return err
		}
		return releaseClaim(tx, intent.ActorID, intent.IntentID)
	})
}

type ProducerStats struct {
	TotalCoins   float64                  `json:"total_coins"`
	TotalScore   float64                  `json:"total_score"`
	TotalBatches int                      `json:"total_batches"`
	History      []domain.ProductionBatch `json:"history"`
}

// ProducerStats sums minted coins and score across the producer's batches, newest first.
func (s *Service) ProducerStats(ctx context.Context, producerID uuid.UUID) (*ProducerStats, error) {
	var batches []domain.ProductionBatch
	if err := s.DB.WithContext(ctx).Where("producer_id = ?", producerID).Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	out := &ProducerStats{History: batches, TotalBatches: len(batches)}
	for _, b := range batches {
		out.TotalCoins += b.MintedCoins
		out.TotalScore += b.Score
	}
	out.TotalCoins = domain.Round2(out.TotalCoins)
	out.TotalScore = domain.Round2(out.TotalScore)
	return out, nil
}
