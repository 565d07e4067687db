package credits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Retire permanently consumes a SOLD credit held by the buyer. RETIRED is terminal.
func (s *Service) Retire(ctx context.Context, buyerID, creditID uuid.UUID, buyerName string) (*domain.Credit, error) {
	var credit *domain.Credit
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		buyer, err := actors.LoadActive(tx, buyerID, constants.Buyer)
		if err != nil {
			return err
		}
		current, err := loadCredit(tx, creditID)
		if err != nil {
			return err
		}
		if current.Status != domain.CreditSold {
			return apperror.ErrNotRetireable()
		}
		if current.OwnerID == nil || *current.OwnerID != buyerID {
			return apperror.ErrNotAuthorized()
		}
		name := strings.TrimSpace(buyerName)
		if name == "" {
			name = buyer.DisplayOrganization()
		}
		now := time.Now().UTC()
		receipt := "retire-" + uuid.NewString()
		res := tx.Model(&domain.Credit{}).
			Where("credit_id = ? AND status = ? AND owner_id = ?", creditID, domain.CreditSold, buyerID).
			Updates(map[string]interface{}{
				"status":       domain.CreditRetired,
				"retired_at":   now,
				"retired_by":   name,
				"retire_tx_id": receipt,
			})
		if res.Error != nil {
			return fmt.Errorf("retire credit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.ErrNotRetireable()
		}
		if err := appendEvent(tx, creditID, EventRetired, &buyerID, map[string]interface{}{
			"retired_by": name,
			"amount":     current.Amount,
			"receipt":    receipt,
		}); err != nil {
			return err
		}
		if err := adjustCredits(tx, buyerID, -current.Amount); err != nil {
			return err
		}
		credit, err = loadCredit(tx, creditID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("credit_id", creditID.String()).Str("buyer_id", buyerID.String()).Msg("credit retired")
	notify.Send(ctx, s.Notifier, s.Log, notify.Event{Type: notify.CreditRetired, ActorID: buyerID.String(), Data: credit})
	return credit, nil
}

// Revoke invalidates a MINTED or LISTED credit. Regulators only; no other row is touched.
func (s *Service) Revoke(ctx context.Context, regulatorID, creditID uuid.UUID, reason string) (*domain.Credit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("reason is required")
	}
	var credit *domain.Credit
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := actors.LoadActive(tx, regulatorID, constants.Regulator); err != nil {
			return err
		}
		current, err := loadCredit(tx, creditID)
		if err != nil {
			return err
		}
		// A listing in settling has a transfer in flight that will move the credit to SOLD.
		inFlight := tx.Model(&domain.MarketplaceListing{}).Select("1").
			Where("credit_id = ? AND status = ?", creditID, domain.ListingSettling)
		res := tx.Model(&domain.Credit{}).
			Where("credit_id = ? AND status IN ? AND NOT EXISTS (?)", creditID,
				[]string{domain.CreditMinted, domain.CreditListed}, inFlight).
			Updates(map[string]interface{}{
				"status":        domain.CreditRevoked,
				"revoked_at":    time.Now().UTC(),
				"revoke_reason": reason,
			})
		if res.Error != nil {
			return fmt.Errorf("revoke credit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.ErrNotRevocable()
		}
		if err := appendEvent(tx, creditID, EventRevoked, &regulatorID, map[string]interface{}{
			"reason":      reason,
			"prior_state": current.Status,
		}); err != nil {
			return err
		}
		if err := adjustCredits(tx, current.ProducerID, -current.Amount); err != nil {
			return err
		}
		credit, err = loadCredit(tx, creditID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Log.Warn().Str("credit_id", creditID.String()).Str("reason", reason).Msg("credit revoked")
	return credit, nil
}
