package credits

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"greencoin-backend/internal/application/actors"
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

// Credit event types written to CreditEvents.
const (
	EventMinted  = "MINTED"
	EventListed  = "LISTED"
	EventSold    = "SOLD"
	EventRetired = "RETIRED"
	EventRevoked = "REVOKED"
)

// Service owns the credit lifecycle: MINTED -> LISTED -> SOLD -> RETIRED, and REVOKED.
type Service struct {
	DB           *gorm.DB
	Store        external.ContentStore
	Chain        external.Chain
	Notifier     notify.Publisher
	SensorSecret string
	Log          zerolog.Logger
}

// SensorHash is the approval hash for a sensor part id.
func SensorHash(secret, partID string) string {
	sum := sha256.Sum256([]byte(secret + partID))
	return hex.EncodeToString(sum[:])
}

// TokenID derives the token id of a credit from its content id.
func TokenID(contentID string) string {
	sum := sha256.Sum256([]byte(contentID))
	return hex.EncodeToString(sum[:])[:16]
}

// CoinsFor is the whole number of coins backed by kg of hydrogen.
func CoinsFor(hydrogenKg float64) int64 {
	if hydrogenKg <= 0 {
		return 0
	}
	return int64(math.Floor(hydrogenKg / domain.KgPerCoin))
}

// RegisterSensor approves a device part id for a producer. Auditors and regulators only.
func (s *Service) RegisterSensor(ctx context.Context, approverID uuid.UUID, partID string, producerID uuid.UUID) (*domain.ApprovedSensor, error) {
	partID = strings.TrimSpace(partID)
	if partID == "" {
		return nil, apperror.Validation("partId is required")
	}
	db := s.DB.WithContext(ctx)
	if _, err := actors.LoadActive(db, approverID, constants.Auditor, constants.Regulator); err != nil {
		return nil, err
	}
	if _, err := actors.LoadActive(db, producerID, constants.Producer); err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&domain.ApprovedSensor{}).Where("part_id = ?", partID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check sensor: %w", err)
	}
	if count > 0 {
		return nil, apperror.New(apperror.KindConflict, "SENSOR_EXISTS", "Sensor already registered")
	}
	sensor := &domain.ApprovedSensor{
		PartID:       partID,
		ApprovedHash: SensorHash(s.SensorSecret, partID),
		ProducerID:   producerID,
		Active:       true,
	}
	if err := db.Create(sensor).Error; err != nil {
		return nil, fmt.Errorf("create sensor: %w", err)
	}
	s.Log.Info().Str("part_id", partID).Str("producer_id", producerID.String()).Msg("sensor approved")
	return sensor, nil
}

type MintInput struct {
	PartID            string  `json:"partId"`
	BatchRef          string  `json:"batchId"`
	HydrogenKg        float64 `json:"hydrogenKg"`
	PurityPct         float64 `json:"purity"`
	RenewableSharePct float64 `json:"renewableShare"`
}

type mintPayload struct {
	BatchRef          string    `json:"batch_ref"`
	PartID            string    `json:"part_id"`
	ProducerID        uuid.UUID `json:"producer_id"`
	HydrogenKg        float64   `json:"hydrogen_kg"`
	PurityPct         float64   `json:"purity_pct"`
	RenewableSharePct float64   `json:"renewable_share_pct"`
	Coins             int64     `json:"coins"`
	VerifiedAt        time.Time `json:"verified_at"`
}

// Mint verifies the sensor and turns a hydrogen quantity into a MINTED credit owned by the producer.
// Repeating a mint for the same batch reference returns the existing credit.
func (s *Service) Mint(ctx context.Context, producerID uuid.UUID, in MintInput) (*domain.Credit, error) {
	in.PartID = strings.TrimSpace(in.PartID)
	in.BatchRef = strings.TrimSpace(in.BatchRef)
	switch {
	case in.PartID == "" || in.BatchRef == "":
		return nil, apperror.Validation("partId and batchId are required")
	case !validation.IsPositive(in.HydrogenKg):
		return nil, apperror.Validation("hydrogenKg must be a positive number")
	case !validation.IsNonNegative(in.PurityPct) || !validation.IsNonNegative(in.RenewableSharePct):
		return nil, apperror.Validation("Percentages must be non-negative")
	}
	db := s.DB.WithContext(ctx)
	producer, err := actors.LoadActive(db, producerID, constants.Producer)
	if err != nil {
		return nil, err
	}
	if err := s.verifySensor(db, in.PartID, producerID); err != nil {
		return nil, err
	}
	coins := CoinsFor(in.HydrogenKg)
	if coins == 0 {
		return nil, apperror.ErrInsufficientHydrogen()
	}
	if existing, err := s.findByBatchRef(db, in.BatchRef); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.ProducerID != producerID {
			return nil, apperror.New(apperror.KindConflict, "BATCH_ALREADY_MINTED", "Batch already minted")
		}
		return existing, nil
	}

	payload := mintPayload{
		BatchRef:          in.BatchRef,
		PartID:            in.PartID,
		ProducerID:        producerID,
		HydrogenKg:        in.HydrogenKg,
		PurityPct:         in.PurityPct,
		RenewableSharePct: in.RenewableSharePct,
		Coins:             coins,
		VerifiedAt:        time.Now().UTC(),
	}
	body, _ := json.Marshal(payload)
	contentID, err := s.Store.Store(ctx, body)
	if err != nil {
		s.Log.Warn().Err(err).Str("batch_ref", in.BatchRef).Msg("mint: content store failed")
		if external.IsTimeout(err) {
			return nil, apperror.ErrUpstreamTimeout(err)
		}
		return nil, apperror.ErrUpstreamStoreFailure(err)
	}

	// The chain dedupes on reference, so a retry after a timeout settles the same transaction.
	txID, err := s.Chain.Mint(ctx, external.MintRequest{
		Reference:   "mint:" + in.BatchRef,
		Beneficiary: producerID,
		Amount:      float64(coins),
		Proof:       contentID,
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("batch_ref", in.BatchRef).Msg("mint: chain mint failed")
		if external.IsTimeout(err) {
			metrics.RecordSettlement("credit_mint", "unknown")
			return nil, apperror.ErrUpstreamTimeout(err)
		}
		metrics.RecordSettlement("credit_mint", "failed")
		return nil, apperror.ErrUpstreamMintFailure(err)
	}

	credit := &domain.Credit{
		BatchRef:          in.BatchRef,
		PartID:            in.PartID,
		ProducerID:        producerID,
		ProducerName:      producer.DisplayOrganization(),
		ContentID:         contentID,
		TokenID:           TokenID(contentID),
		HydrogenKg:        in.HydrogenKg,
		PurityPct:         in.PurityPct,
		RenewableSharePct: in.RenewableSharePct,
		Amount:            coins,
		Status:            domain.CreditMinted,
		OwnerType:         domain.OwnerProducer,
		OwnerID:           &producerID,
		MintTxID:          txID,
	}
	err = s.DB.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(credit).Error; err != nil {
			return fmt.Errorf("create credit: %w", err)
		}
		if err := appendEvent(tx, credit.CreditID, EventMinted, &producerID, map[string]interface{}{
			"amount":     coins,
			"content_id": contentID,
			"tx_id":      txID,
		}); err != nil {
			return err
		}
		return adjustCredits(tx, producerID, coins)
	})
	if err != nil {
		// A concurrent mint of the same batch may have won the unique batch_ref.
		if existing, ferr := s.findByBatchRef(s.DB.WithContext(context.WithoutCancel(ctx)), in.BatchRef); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, apperror.Internal(err)
	}
	metrics.RecordSettlement("credit_mint", "completed")
	s.Log.Info().Str("credit_id", credit.CreditID.String()).Int64("amount", coins).Str("tx_id", txID).Msg("credit minted")
	notify.Send(ctx, s.Notifier, s.Log, notify.Event{Type: notify.CreditMinted, ActorID: producerID.String(), Data: credit})
	return credit, nil
}

func (s *Service) verifySensor(db *gorm.DB, partID string, producerID uuid.UUID) error {
	var sensor domain.ApprovedSensor
	err := db.Where("part_id = ? AND active = ?", partID, true).First(&sensor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.ErrSensorNotApproved()
	}
	if err != nil {
		return fmt.Errorf("load sensor: %w", err)
	}
	if sensor.ApprovedHash != SensorHash(s.SensorSecret, partID) || sensor.ProducerID != producerID {
		return apperror.ErrSensorNotApproved()
	}
	return nil
}

func (s *Service) findByBatchRef(db *gorm.DB, batchRef string) (*domain.Credit, error) {
	var credit domain.Credit
	err := db.Where("batch_ref = ?", batchRef).First(&credit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credit: %w", err)
	}
	return &credit, nil
}

func (s *Service) Get(ctx context.Context, creditID uuid.UUID) (*domain.Credit, error) {
	return loadCredit(s.DB.WithContext(ctx), creditID)
}

// Events returns the lifecycle events of a credit, oldest first.
func (s *Service) Events(ctx context.Context, creditID uuid.UUID) ([]domain.CreditEvent, error) {
	var events []domain.CreditEvent
	if err := s.DB.WithContext(ctx).Where("credit_id = ?", creditID).Order("created_at ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list credit events: %w", err)
	}
	return events, nil
}

// Owned lists credits currently owned by an actor, newest first.
func (s *Service) Owned(ctx context.Context, ownerID uuid.UUID) ([]domain.Credit, error) {
	var out []domain.Credit
	if err := s.DB.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return out, nil
}

func loadCredit(db *gorm.DB, creditID uuid.UUID) (*domain.Credit, error) {
	if creditID == uuid.Nil {
		return nil, apperror.Validation("creditId is required")
	}
	var credit domain.Credit
	err := db.Where("credit_id = ?", creditID).First(&credit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Credit")
	}
	if err != nil {
		return nil, fmt.Errorf("load credit: %w", err)
	}
	return &credit, nil
}

func appendEvent(tx *gorm.DB, creditID uuid.UUID, eventType string, actorID *uuid.UUID, data map[string]interface{}) error {
	raw, _ := json.Marshal(data)
	if err := tx.Create(&domain.CreditEvent{
		CreditID:  creditID,
		EventType: eventType,
		EventData: datatypes.JSON(raw),
		ActorID:   actorID,
	}).Error; err != nil {
		return fmt.Errorf("record %s event: %w", strings.ToLower(eventType), err)
	}
	return nil
}

func adjustCredits(tx *gorm.DB, actorID uuid.UUID, delta int64) error {
	if err := tx.Model(&domain.Actor{}).Where("actor_id = ?", actorID).
		Update("credits", gorm.Expr("credits + ?", delta)).Error; err != nil {
		return fmt.Errorf("update actor credits: %w", err)
	}
	return nil
}
