// Package intents is the settlement intent log. An intent is written before any chain call and
// resolved exactly once: completed, failed, or left unknown for the reconciler.
package intents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"greencoin-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrClosed is returned when an intent was already resolved by another path.
var ErrClosed = errors.New("settlement intent already resolved")

var openStatuses = []string{domain.IntentPending, domain.IntentUnknown}

type BeginInput struct {
	// IntentID is optional; set it when the caller must reference the intent before it exists.
	IntentID       uuid.UUID
	Kind           string
	ReferenceID    uuid.UUID
	ActorID        uuid.UUID
	Amount         float64
	IdempotencyKey string
	Payload        interface{}
}

// Begin records a pending intent. Must run inside the transaction that claims the resource.
func Begin(tx *gorm.DB, in BeginInput) (*domain.SettlementIntent, error) {
	intent := &domain.SettlementIntent{
		IntentID:    in.IntentID,
		Kind:        in.Kind,
		ReferenceID: in.ReferenceID,
		ActorID:     in.ActorID,
		Amount:      in.Amount,
		Status:      domain.IntentPending,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		intent.IdempotencyKey = &key
	}
	if in.Payload != nil {
		b, err := json.Marshal(in.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode intent payload: %w", err)
		}
		intent.Payload = datatypes.JSON(b)
	}
	if err := tx.Create(intent).Error; err != nil {
		return nil, fmt.Errorf("record intent: %w", err)
	}
	return intent, nil
}

// FindByKey returns the intent recorded under a client idempotency key, nil if none.
func FindByKey(db *gorm.DB, kind, key string) (*domain.SettlementIntent, error) {
	if key == "" {
		return nil, nil
	}
	var intent domain.SettlementIntent
	err := db.Where("kind = ? AND idempotency_key = ?", kind, key).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindOpen returns the unresolved intent of kind for a reference or actor, nil if none.
func FindOpen(db *gorm.DB, kind string, column string, id uuid.UUID) (*domain.SettlementIntent, error) {
	var intent domain.SettlementIntent
	err := db.Where("kind = ? AND status IN ? AND "+column+" = ?", kind, openStatuses, id).
		Order("created_at ASC").First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func Get(db *gorm.DB, id uuid.UUID) (*domain.SettlementIntent, error) {
	var intent domain.SettlementIntent
	if err := db.Where("intent_id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// SetPayload replaces the payload of an open intent.
func SetPayload(db *gorm.DB, id uuid.UUID, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode intent payload: %w", err)
	}
	return db.Model(&domain.SettlementIntent{}).
		Where("intent_id = ? AND status IN ?", id, openStatuses).
		Update("payload", datatypes.JSON(b)).Error
}

// Complete resolves an open intent with its chain transaction. ErrClosed if already resolved.
func Complete(tx *gorm.DB, id uuid.UUID, chainTxID string) error {
	return resolve(tx, id, map[string]interface{}{
		"status":      domain.IntentCompleted,
		"chain_tx_id": chainTxID,
		"last_error":  nil,
		"attempts":    gorm.Expr("attempts + 1"),
	})
}

// Fail resolves an open intent as failed and frees its idempotency key for a retry.
func Fail(tx *gorm.DB, id uuid.UUID, reason error) error {
	msg := reason.Error()
	return resolve(tx, id, map[string]interface{}{
		"status":          domain.IntentFailed,
		"last_error":      msg,
		"idempotency_key": nil,
		"attempts":        gorm.Expr("attempts + 1"),
	})
}

// MarkUnknown records that the chain call timed out. The intent stays open.
func MarkUnknown(db *gorm.DB, id uuid.UUID, reason error) error {
	res := db.Model(&domain.SettlementIntent{}).
		Where("intent_id = ? AND status = ?", id, domain.IntentPending).
		Updates(map[string]interface{}{
			"status":     domain.IntentUnknown,
			"last_error": reason.Error(),
			"attempts":   gorm.Expr("attempts + 1"),
		})
	return res.Error
}

func resolve(tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	res := tx.Model(&domain.SettlementIntent{}).
		Where("intent_id = ? AND status IN ?", id, openStatuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClosed
	}
	return nil
}

// Stale lists open intents last touched before cutoff, oldest first.
func Stale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.SettlementIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.SettlementIntent
	err := db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", openStatuses, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Decode unmarshals an intent payload into v.
func Decode(intent *domain.SettlementIntent, v interface{}) error {
	if len(intent.Payload) == 0 {
		return fmt.Errorf("intent %s has no payload", intent.IntentID)
	}
	return json.Unmarshal(intent.Payload, v)
}
