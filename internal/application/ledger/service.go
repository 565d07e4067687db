package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/metrics"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the per-actor running-balance ledger.
type Service struct {
	DB       *gorm.DB
	Notifier notify.Publisher
	Log      zerolog.Logger
}

type AppendInput struct {
	ActorID          uuid.UUID
	Direction        string
	Magnitude        float64
	Reason           string
	RelatedRequestID *uuid.UUID
}

func (in AppendInput) validate() error {
	if in.ActorID == uuid.Nil {
		return apperror.Validation("actor_id is required")
	}
	if in.Direction != domain.DirectionCredit && in.Direction != domain.DirectionDebit {
		return apperror.Validation("direction must be credit or debit")
	}
	if in.Magnitude < 0 || math.IsNaN(in.Magnitude) || math.IsInf(in.Magnitude, 0) {
		return apperror.Validation("magnitude must be a non-negative number")
	}
	if in.Reason == "" {
		return apperror.Validation("reason is required")
	}
	return nil
}

// Append appends one entry in its own transaction and publishes it.
func (s *Service) Append(ctx context.Context, in AppendInput) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = AppendTx(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	Announce(ctx, s.Notifier, s.Log, entry)
	return entry, nil
}

// Announce publishes a committed entry. Callers of AppendTx call it after their transaction commits.
func Announce(ctx context.Context, p notify.Publisher, log zerolog.Logger, entry *domain.LedgerEntry) {
	if entry == nil {
		return
	}
	notify.Send(ctx, p, log, notify.Event{Type: notify.LedgerAppended, ActorID: entry.ActorID.String(), Data: entry})
}

// AppendTx appends inside the caller's transaction. Appends for one actor serialize on the
// head row: it is incremented first and read back under the same row lock.
func AppendTx(tx *gorm.DB, in AppendInput) (*domain.LedgerEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	magnitude := domain.Round2(in.Magnitude)
	delta := magnitude
	if in.Direction == domain.DirectionDebit {
		delta = -magnitude
	}

	head := domain.LedgerHead{ActorID: in.ActorID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&head).Error; err != nil {
		return nil, fmt.Errorf("init ledger head: %w", err)
	}
	res := tx.Model(&domain.LedgerHead{}).
		Where("actor_id = ?", in.ActorID).
		Updates(map[string]interface{}{
			"balance":     gorm.Expr("balance + ?", delta),
			"entry_count": gorm.Expr("entry_count + 1"),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("advance ledger head: %w", res.Error)
	}
	if err := tx.Where("actor_id = ?", in.ActorID).First(&head).Error; err != nil {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}

	entry := &domain.LedgerEntry{
		ActorID:          in.ActorID,
		Sequence:         head.EntryCount,
		Direction:        in.Direction,
		Magnitude:        magnitude,
		Reason:           in.Reason,
		RelatedRequestID: in.RelatedRequestID,
		BalanceAfter:     domain.Round2(head.Balance),
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	metrics.RecordLedgerAppend(in.Direction)
	return entry, nil
}

// Entries returns an actor's entries in append order. limit <= 0 returns all.
func (s *Service) Entries(ctx context.Context, actorID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	q := s.DB.WithContext(ctx).Where("actor_id = ?", actorID).Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

type Summary struct {
	ActorID           uuid.UUID `json:"actor_id"`
	TotalTransactions int64     `json:"total_transactions"`
	TotalCredited     float64   `json:"total_credited"`
	TotalDebited      float64   `json:"total_debited"`
	Balance           float64   `json:"balance"`
	LastSequence      int64     `json:"last_sequence"`
}

// Summary folds every entry of the actor.
func (s *Service) Summary(ctx context.Context, actorID uuid.UUID) (*Summary, error) {
	entries, err := s.Entries(ctx, actorID, 0)
	if err != nil {
		return nil, err
	}
	out := &Summary{ActorID: actorID}
	for _, e := range entries {
		out.TotalTransactions++
		if e.Direction == domain.DirectionCredit {
			out.TotalCredited += e.Magnitude
		} else {
			out.TotalDebited += e.Magnitude
		}
		out.Balance = e.BalanceAfter
		out.LastSequence = e.Sequence
	}
	out.TotalCredited = domain.Round2(out.TotalCredited)
	out.TotalDebited = domain.Round2(out.TotalDebited)
	return out, nil
}

type PurchaseSummary struct {
	TotalTransactions int64   `json:"total_transactions"`
	TotalQuantity     float64 `json:"total_quantity"`
	TotalCoins        int64   `json:"total_coins"`
	ConfirmedCount    int64   `json:"confirmed_count"`
}

// PurchaseSummary folds the purchase log rows where the actor is the buyer, or the producer
// when asProducer is set.
func (s *Service) PurchaseSummary(ctx context.Context, actorID uuid.UUID, asProducer bool) (*PurchaseSummary, error) {
	column := "buyer_id"
	if asProducer {
		column = "producer_id"
	}
	var rows []domain.PurchaseLog
	if err := s.DB.WithContext(ctx).Where(column+" = ?", actorID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list purchase logs: %w", err)
	}
	out := &PurchaseSummary{}
	for _, r := range rows {
		out.TotalTransactions++
		out.TotalQuantity += r.HydrogenKg
		out.TotalCoins += r.Coins
		if r.IsConfirmed {
			out.ConfirmedCount++
		}
	}
	out.TotalQuantity = domain.Round2(out.TotalQuantity)
	return out, nil
}

type VerifyResult struct {
	ActorID    uuid.UUID `json:"actor_id"`
	Entries    int       `json:"entries"`
	Replayed   float64   `json:"replayed_balance"`
	Stored     float64   `json:"stored_balance"`
	Consistent bool      `json:"consistent"`
	// BrokenAt is the first sequence whose balance_after disagrees with the replay, 0 when consistent.
	BrokenAt int64 `json:"broken_at,omitempty"`
}

const balanceTolerance = 0.005

// Verify replays the actor's entries from zero and compares each running balance and the head.
func (s *Service) Verify(ctx context.Context, actorID uuid.UUID) (*VerifyResult, error) {
	entries, err := s.Entries(ctx, actorID, 0)
	if err != nil {
		return nil, err
	}
	out := &VerifyResult{ActorID: actorID, Entries: len(entries), Consistent: true}
	running := 0.0
	for i, e := range entries {
		running += e.Signed()
		if out.Consistent && (e.Sequence != int64(i+1) || math.Abs(running-e.BalanceAfter) > balanceTolerance) {
			out.Consistent = false
			out.BrokenAt = e.Sequence
		}
	}
	out.Replayed = domain.Round2(running)

	var head domain.LedgerHead
	err = s.DB.WithContext(ctx).Where("actor_id = ?", actorID).First(&head).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		out.Stored = 0
	case err != nil:
		return nil, fmt.Errorf("read ledger head: %w", err)
	default:
		out.Stored = domain.Round2(head.Balance)
	}
	if out.Consistent && math.Abs(out.Replayed-out.Stored) > balanceTolerance {
		out.Consistent = false
	}
	return out, nil
}
