package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/application/intents"
	"greencoin-backend/internal/application/ledger"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/infrastructure/metrics"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type confirmPayload struct {
	RequestID    uuid.UUID `json:"request_id"`
	ProducerID   uuid.UUID `json:"producer_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	BuyerCompany string    `json:"buyer_company"`
	HydrogenKg   float64   `json:"hydrogen_kg"`
	Price        float64   `json:"price"`
	Total        float64   `json:"total"`
	ProofDoc     string    `json:"proof_doc"`
}

type ConfirmResult struct {
	BuyerWallet float64             `json:"buyer_wallet"`
	Request     *domain.SellRequest `json:"request"`
	Invoice     *domain.Invoice     `json:"invoice"`
}

// ConfirmBuy settles a sell request: wallet debit, chain mint, invoice, producer ledger debit and
// status sold, all or nothing. A repeated call with the same idempotency key returns the first result.
func (s *Service) ConfirmBuy(ctx context.Context, producerID, requestID uuid.UUID, idempotencyKey string) (*ConfirmResult, error) {
	db := s.DB.WithContext(ctx)
	if prior, err := intents.FindByKey(db, domain.IntentConfirmBuy, idempotencyKey); err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	} else if prior != nil {
		if prior.ReferenceID != requestID || prior.ActorID != producerID {
			return nil, apperror.New(apperror.KindConflict, "IDEMPOTENCY_KEY_REUSED", "Idempotency key was used for another request")
		}
		if prior.Open() {
			return nil, apperror.ErrSettlementInProgress()
		}
		return s.result(db, requestID)
	}

	var intent *domain.SettlementIntent
	var payload confirmPayload
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := actors.LoadActive(tx, producerID, constants.Producer); err != nil {
			return err
		}
		req, err := loadRequest(tx, requestID)
		if err != nil {
			return err
		}
		if req.ProducerID != producerID {
			return apperror.ErrNotAuthorized()
		}
		switch req.Status {
		case domain.SellRequestSettling:
			return apperror.ErrSettlementInProgress()
		case domain.SellRequestPending:
		default:
			return apperror.ErrNotAuthorized()
		}
		if req.BuyerID == nil {
			return apperror.ErrNoBuyerAssigned()
		}
		buyer, err := actors.LoadActive(tx, *req.BuyerID, constants.Buyer)
		if err != nil {
			return err
		}
		total := req.Total()

		res := tx.Model(&domain.SellRequest{}).
			Where("request_id = ? AND status = ? AND producer_id = ? AND buyer_id = ?", requestID, domain.SellRequestPending, producerID, buyer.ActorID).
			Update("status", domain.SellRequestSettling)
		if res.Error != nil {
			return fmt.Errorf("claim sell request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.ErrSettlementInProgress()
		}
		res = tx.Model(&domain.Actor{}).
			Where("actor_id = ? AND wallet_balance >= ?", buyer.ActorID, total).
			Update("wallet_balance", gorm.Expr("wallet_balance - ?", total))
		if res.Error != nil {
			return fmt.Errorf("debit wallet: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.ErrInsufficientBalance()
		}

		payload = confirmPayload{
			RequestID:    requestID,
			ProducerID:   producerID,
			BuyerID:      buyer.ActorID,
			BuyerCompany: buyer.DisplayOrganization(),
			HydrogenKg:   req.HydrogenKg,
			Price:        req.Price,
			Total:        total,
			ProofDoc:     req.ProofDoc,
		}
		intent, err = intents.Begin(tx, intents.BeginInput{
			Kind:           domain.IntentConfirmBuy,
			ReferenceID:    requestID,
			ActorID:        producerID,
			Amount:         total,
			IdempotencyKey: idempotencyKey,
			Payload:        payload,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	txID, err := s.Chain.Mint(ctx, external.MintRequest{
		Reference:   intent.IntentID.String(),
		Beneficiary: producerID,
		Amount:      payload.HydrogenKg,
		Proof:       payload.ProofDoc,
	})
	if err != nil {
		if external.IsTimeout(err) {
			if uerr := intents.MarkUnknown(s.DB.WithContext(context.WithoutCancel(ctx)), intent.IntentID, err); uerr != nil {
				s.Log.Error().Err(uerr).Str("intent_id", intent.IntentID.String()).Msg("confirm buy: mark intent unknown failed")
			}
			metrics.RecordSettlement(domain.IntentConfirmBuy, "unknown")
			s.Log.Warn().Err(err).Str("request_id", requestID.String()).Msg("confirm buy: mint timed out, funds held for reconciliation")
			return nil, apperror.ErrUpstreamTimeout(err)
		}
		if cerr := s.compensate(context.WithoutCancel(ctx), intent, payload, err); cerr != nil && !errors.Is(cerr, intents.ErrClosed) {
			s.Log.Error().Err(cerr).Str("intent_id", intent.IntentID.String()).Msg("confirm buy: compensation failed")
		}
		metrics.RecordSettlement(domain.IntentConfirmBuy, "failed")
		return nil, apperror.ErrUpstreamMintFailure(err)
	}

	result, err := s.complete(context.WithoutCancel(ctx), intent.IntentID, payload, txID)
	if err != nil {
		s.Log.Error().Err(err).Str("intent_id", intent.IntentID.String()).Str("tx_id", txID).Msg("confirm buy: persist after mint failed, left for reconciliation")
		return nil, apperror.Internal(err)
	}
	metrics.RecordSettlement(domain.IntentConfirmBuy, "completed")
	notify.Send(ctx, s.Notifier, s.Log, notify.Event{Type: notify.SellRequestSold, ActorID: producerID.String(), Data: result.Request})
	return result, nil
}

func (s *Service) complete(ctx context.Context, intentID uuid.UUID, p confirmPayload, txID string) (*ConfirmResult, error) {
	invoice := &domain.Invoice{
		SellRequestID: p.RequestID,
		ProducerID:    p.ProducerID,
		BuyerID:       p.BuyerID,
		HydrogenKg:    p.HydrogenKg,
		Price:         p.Price,
		TotalAmount:   p.Total,
		TxID:          txID,
	}
	requestID := p.RequestID
	var entry *domain.LedgerEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := intents.Complete(tx, intentID, txID); err != nil {
			return err
		}
		if err := tx.Create(invoice).Error; err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		var err error
		if entry, err = ledger.AppendTx(tx, ledger.AppendInput{
			ActorID:          p.ProducerID,
			Direction:        domain.DirectionDebit,
			Magnitude:        p.HydrogenKg,
			Reason:           "Sold " + strconv.FormatFloat(p.HydrogenKg, 'f', -1, 64) + " units to " + p.BuyerCompany,
			RelatedRequestID: &requestID,
		}); err != nil {
			return err
		}
		res := tx.Model(&domain.SellRequest{}).
			Where("request_id = ? AND status = ?", p.RequestID, domain.SellRequestSettling).
			Updates(map[string]interface{}{
				"status":     domain.SellRequestSold,
				"tx_id":      txID,
				"invoice_id": invoice.InvoiceID,
			})
		if res.Error != nil {
			return fmt.Errorf("close sell request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("sell request %s is not settling", p.RequestID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("request_id", p.RequestID.String()).Str("invoice_id", invoice.InvoiceID.String()).
		Float64("total", p.Total).Str("tx_id", txID).Msg("sell request settled")
	ledger.Announce(ctx, s.Notifier, s.Log, entry)
	return s.result(s.DB.WithContext(ctx), p.RequestID)
}

// compensate undoes the wallet debit and reopens the request after a rejected mint.
func (s *Service) compensate(ctx context.Context, intent *domain.SettlementIntent, p confirmPayload, reason error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := intents.Fail(tx, intent.IntentID, reason); err != nil {
			return err
		}
		if err := tx.Model(&domain.Actor{}).Where("actor_id = ?", p.BuyerID).
			Update("wallet_balance", gorm.Expr("wallet_balance + ?", p.Total)).Error; err != nil {
			return fmt.Errorf("refund wallet: %w", err)
		}
		res := tx.Model(&domain.SellRequest{}).
			Where("request_id = ? AND status = ?", p.RequestID, domain.SellRequestSettling).
			Update("status", domain.SellRequestPending)
		if res.Error != nil {
			return fmt.Errorf("reopen sell request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("sell request %s is not settling", p.RequestID)
		}
		s.Log.Warn().Err(reason).Str("request_id", p.RequestID.String()).Float64("refund", p.Total).Msg("confirm buy: compensated")
		return nil
	})
}

func (s *Service) result(db *gorm.DB, requestID uuid.UUID) (*ConfirmResult, error) {
	req, err := loadRequest(db, requestID)
	if err != nil {
		return nil, err
	}
	out := &ConfirmResult{Request: req}
	if req.InvoiceID != nil {
		var inv domain.Invoice
		if err := db.Where("invoice_id = ?", *req.InvoiceID).First(&inv).Error; err != nil {
			return nil, fmt.Errorf("load invoice: %w", err)
		}
		out.Invoice = &inv
	}
	if req.BuyerID != nil {
		buyer, err := actors.Load(db, *req.BuyerID)
		if err != nil {
			return nil, err
		}
		out.BuyerWallet = buyer.WalletBalance
	}
	return out, nil
}

// CompleteIntent finishes a settlement whose mint the chain confirmed after the request gave up.
func (s *Service) CompleteIntent(ctx context.Context, intent *domain.SettlementIntent, txID string) error {
	var p confirmPayload
	if err := intents.Decode(intent, &p); err != nil {
		return err
	}
	result, err := s.complete(ctx, intent.IntentID, p, txID)
	if err != nil {
		return err
	}
	notify.Send(ctx, s.Notifier, s.Log, notify.Event{Type: notify.SellRequestSold, ActorID: p.ProducerID.String(), Data: result.Request})
	return nil
}

// AbortIntent refunds the buyer and reopens the request when the chain never recorded the mint.
func (s *Service) AbortIntent(ctx context.Context, intent *domain.SettlementIntent, reason error) error {
	var p confirmPayload
	if err := intents.Decode(intent, &p); err != nil {
		return err
	}
	return s.compensate(ctx, intent, p, reason)
}
