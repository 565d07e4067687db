package credits

import (
	"context"
	"errors"
	"fmt"

	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/application/intents"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/infrastructure/metrics"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"
	"greencoin-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// List opens a marketplace listing for a MINTED credit the producer owns.
func (s *Service) List(ctx context.Context, producerID, creditID uuid.UUID, price float64, amount int64) (*domain.MarketplaceListing, error) {
	if !validation.IsPositive(price) {
		return nil, apperror.Validation("price must be a positive number")
	}
	if amount <= 0 {
		return nil, apperror.Validation("amount must be a positive integer")
	}
	var listing *domain.MarketplaceListing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := actors.LoadActive(tx, producerID, constants.Producer); err != nil {
			return err
		}
		credit, err := loadCredit(tx, creditID)
		if err != nil {
			return err
		}
		if credit.ProducerID != producerID || credit.OwnerType != domain.OwnerProducer {
			return apperror.ErrNotAuthorized()
		}
		res := tx.Model(&domain.Credit{}).
			Where("credit_id = ? AND status = ? AND amount >= ?", creditID, domain.CreditMinted, amount).
			Updates(map[string]interface{}{"status": domain.CreditListed, "list_price": price})
		if res.Error != nil {
			return fmt.Errorf("list credit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.ErrNotListable()
		}
		listing = &domain.MarketplaceListing{
			CreditID:        creditID,
			ProducerID:      producerID,
			Price:           domain.Round2(price),
			AvailableAmount: amount,
			Status:          domain.ListingActive,
		}
		if err := tx.Create(listing).Error; err != nil {
			return fmt.Errorf("create listing: %w", err)
		}
		return appendEvent(tx, creditID, EventListed, &producerID, map[string]interface{}{
			"listing_id": listing.ListingID,
			"price":      listing.Price,
			"amount":     amount,
		})
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("listing_id", listing.ListingID.String()).Str("credit_id", creditID.String()).Float64("price", price).Msg("credit listed")
	return listing, nil
}

// ActiveListings returns listings open for purchase, newest first.
func (s *Service) ActiveListings(ctx context.Context, limit int) ([]domain.MarketplaceListing, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []domain.MarketplaceListing
	if err := s.DB.WithContext(ctx).Where("status = ?", domain.ListingActive).
		Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return out, nil
}

type purchasePayload struct {
	ListingID    uuid.UUID `json:"listing_id"`
	CreditID     uuid.UUID `json:"credit_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	BuyerName    string    `json:"buyer_name"`
	ProducerID   uuid.UUID `json:"producer_id"`
	ProducerName string    `json:"producer_name"`
	TokenID      string    `json:"token_id"`
	Coins        int64     `json:"coins"`
	HydrogenKg   float64   `json:"hydrogen_kg"`
	Price        float64   `json:"price"`
}

// PurchaseResult is what a successful purchase returns to the buyer.
type PurchaseResult struct {
	TxID   string              `json:"tx_id"`
	Credit *domain.Credit      `json:"credit"`
	Log    *domain.PurchaseLog `json:"log"`
}

// Purchase buys the whole credit behind an active listing. The listing leaves active at most once:
// the claim is a conditional update and only its winner calls the chain.
func (s *Service) Purchase(ctx context.Context, buyerID, listingID uuid.UUID) (*PurchaseResult, error) {
	if listingID == uuid.Nil {
		return nil, apperror.Validation("listingId is required")
	}
	var intent *domain.SettlementIntent
	var payload purchasePayload
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		buyer, err := actors.LoadActive(tx, buyerID, constants.Buyer)
		if err != nil {
			return err
		}
		if err := claimListing(tx, listingID); err != nil {
			return err
		}
		var listing domain.MarketplaceListing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			return fmt.Errorf("load listing: %w", err)
		}
		credit, err := loadCredit(tx, listing.CreditID)
		if err != nil {
			return err
		}
		// Rolling back returns the listing to active.
		if credit.Status != domain.CreditListed {
			return apperror.ErrListingNotFound()
		}
		payload = purchasePayload{
			ListingID:    listingID,
			CreditID:     credit.CreditID,
			BuyerID:      buyerID,
			BuyerName:    buyer.DisplayOrganization(),
			ProducerID:   credit.ProducerID,
			ProducerName: credit.ProducerName,
			TokenID:      credit.TokenID,
			Coins:        credit.Amount,
			HydrogenKg:   credit.HydrogenKg,
			Price:        listing.Price,
		}
		intent, err = intents.Begin(tx, intents.BeginInput{
			Kind:        domain.IntentPurchase,
			ReferenceID: listingID,
			ActorID:     buyerID,
			Amount:      listing.Price,
			Payload:     payload,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	txID, err := s.Chain.Transfer(ctx, external.TransferRequest{
		Reference: intent.IntentID.String(),
		TokenID:   payload.TokenID,
		From:      payload.ProducerID,
		To:        buyerID,
		Amount:    payload.Coins,
	})
	if err != nil {
		if external.IsTimeout(err) {
			if uerr := intents.MarkUnknown(s.DB.WithContext(context.WithoutCancel(ctx)), intent.IntentID, err); uerr != nil {
				s.Log.Error().Err(uerr).Str("intent_id", intent.IntentID.String()).Msg("purchase: mark intent unknown failed")
			}
			metrics.RecordSettlement(domain.IntentPurchase, "unknown")
			s.Log.Warn().Err(err).Str("listing_id", listingID.String()).Msg("purchase: transfer timed out, left for reconciliation")
			return nil, apperror.ErrUpstreamTimeout(err)
		}
		if aerr := s.releaseListing(context.WithoutCancel(ctx), intent, err); aerr != nil && !errors.Is(aerr, intents.ErrClosed) {
			s.Log.Error().Err(aerr).Str("intent_id", intent.IntentID.String()).Msg("purchase: release listing failed")
		}
		metrics.RecordSettlement(domain.IntentPurchase, "failed")
		return nil, apperror.ErrUpstreamTransferFailure(err)
	}

	result, err := s.completePurchase(context.WithoutCancel(ctx), intent.IntentID, payload, txID)
	if err != nil {
		s.Log.Error().Err(err).Str("intent_id", intent.IntentID.String()).Str("tx_id", txID).Msg("purchase: persist after transfer failed, left for reconciliation")
		return nil, apperror.Internal(err)
	}
	metrics.RecordSettlement(domain.IntentPurchase, "completed")
	notify.Send(ctx, s.Notifier, s.Log, notify.Event{Type: notify.CreditSold, ActorID: buyerID.String(), Data: result.Log})
	return result, nil
}

// claimListing moves an active listing to settling. Only the first claim matches the row; every
// later one sees zero rows affected and gets ListingNotFound.
func claimListing(tx *gorm.DB, listingID uuid.UUID) error {
	res := tx.Model(&domain.MarketplaceListing{}).
		Where("listing_id = ? AND status = ?", listingID, domain.ListingActive).
		Update("status", domain.ListingSettling)
	if res.Error != nil {
		return fmt.Errorf("claim listing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.ErrListingNotFound()
	}
	return nil
}

func (s *Service) completePurchase(ctx context.Context, intentID uuid.UUID, p purchasePayload, txID string) (*PurchaseResult, error) {
	logRow := &domain.PurchaseLog{
		TxID:         txID,
		ListingID:    p.ListingID,
		CreditID:     p.CreditID,
		BuyerID:      p.BuyerID,
		BuyerName:    p.BuyerName,
		ProducerID:   p.ProducerID,
		ProducerName: p.ProducerName,
		Coins:        p.Coins,
		HydrogenKg:   p.HydrogenKg,
		Price:        p.Price,
	}
	var credit *domain.Credit
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := intents.Complete(tx, intentID, txID); err != nil {
			return err
		}
		res := tx.Model(&domain.MarketplaceListing{}).
			Where("listing_id = ? AND status = ?", p.ListingID, domain.ListingSettling).
			Updates(map[string]interface{}{"status": domain.ListingSoldOut, "available_amount": 0})
		if res.Error != nil {
			return fmt.Errorf("close listing: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("listing %s is not settling", p.ListingID)
		}
		res = tx.Model(&domain.Credit{}).
			Where("credit_id = ? AND status = ?", p.CreditID, domain.CreditListed).
			Updates(map[string]interface{}{
				"status":     domain.CreditSold,
				"owner_type": domain.OwnerBuyer,
				"owner_id":   p.BuyerID,
				"sale_tx_id": txID,
			})
		if res.Error != nil {
			return fmt.Errorf("sell credit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("credit %s is not listed", p.CreditID)
		}
		if err := tx.Create(logRow).Error; err != nil {
			return fmt.Errorf("create purchase log: %w", err)
		}
		if err := appendEvent(tx, p.CreditID, EventSold, &p.BuyerID, map[string]interface{}{
			"listing_id": p.ListingID,
			"price":      p.Price,
			"tx_id":      txID,
		}); err != nil {
			return err
		}
		if err := adjustCredits(tx, p.ProducerID, -p.Coins); err != nil {
			return err
		}
		if err := adjustCredits(tx, p.BuyerID, p.Coins); err != nil {
			return err
		}
		var err error
		credit, err = loadCredit(tx, p.CreditID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("credit_id", p.CreditID.String()).Str("buyer_id", p.BuyerID.String()).Str("tx_id", txID).Msg("credit sold")
	return &PurchaseResult{TxID: txID, Credit: credit, Log: logRow}, nil
}

func (s *Service) releaseListing(ctx context.Context, intent *domain.SettlementIntent, reason error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := intents.Fail(tx, intent.IntentID, reason); err != nil {
			return err
		}
		return tx.Model(&domain.MarketplaceListing{}).
			Where("listing_id = ? AND status = ?", intent.ReferenceID, domain.ListingSettling).
			Update("status", domain.ListingActive).Error
	})
}

// ConfirmSettlement marks the buyer's purchase log row confirmed. No credit state changes.
func (s *Service) ConfirmSettlement(ctx context.Context, buyerID uuid.UUID, txID string) (*domain.PurchaseLog, error) {
	if txID == "" {
		return nil, apperror.Validation("txId is required")
	}
	db := s.DB.WithContext(ctx)
	var row domain.PurchaseLog
	err := db.Where("tx_id = ? AND buyer_id = ?", txID, buyerID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Transaction")
	}
	if err != nil {
		return nil, fmt.Errorf("load purchase log: %w", err)
	}
	if row.IsConfirmed {
		return &row, nil
	}
	if err := db.Model(&domain.PurchaseLog{}).Where("log_id = ?", row.LogID).Update("is_confirmed", true).Error; err != nil {
		return nil, fmt.Errorf("confirm purchase: %w", err)
	}
	row.IsConfirmed = true
	return &row, nil
}

// CompleteIntent finishes a purchase whose transfer the chain confirmed after the request gave up.
func (s *Service) CompleteIntent(ctx context.Context, intent *domain.SettlementIntent, txID string) error {
	var p purchasePayload
	if err := intents.Decode(intent, &p); err != nil {
		return err
	}
	result, err := s.completePurchase(ctx, intent.IntentID, p, txID)
	if err != nil {
		return err
	}
	notify.Send(ctx, s.Notifier, s.Log, notify.Event{Type: notify.CreditSold, ActorID: p.BuyerID.String(), Data: result.Log})
	return nil
}

// AbortIntent fails a purchase the chain never recorded and reopens the listing.
func (s *Service) AbortIntent(ctx context.Context, intent *domain.SettlementIntent, reason error) error {
	return s.releaseListing(ctx, intent, reason)
}
