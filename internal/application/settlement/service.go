package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"greencoin-backend/internal/application/actors"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"
	"greencoin-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Service runs the sell-request path: tender, buyer assignment, wallet-debit settlement, invoice.
type Service struct {
	DB       *gorm.DB
	Chain    external.Chain
	Notifier notify.Publisher
	Log      zerolog.Logger
}

type CreateSellRequestInput struct {
	HydrogenKg float64 `json:"hydrogenQty"`
	Price      float64 `json:"price"`
	Score      float64 `json:"score"`
	ProofDoc   string  `json:"proofDoc"`
}

func (s *Service) CreateSellRequest(ctx context.Context, producerID uuid.UUID, in CreateSellRequestInput) (*domain.SellRequest, error) {
	switch {
	case !validation.IsPositive(in.HydrogenKg):
		return nil, apperror.Validation("hydrogenQty must be a positive number")
	case !validation.IsPositive(in.Price):
		return nil, apperror.Validation("price must be a positive number")
	case !validation.IsNonNegative(in.Score):
		return nil, apperror.Validation("score must be a non-negative number")
	}
	db := s.DB.WithContext(ctx)
	if _, err := actors.LoadActive(db, producerID, constants.Producer); err != nil {
		return nil, err
	}
	req := &domain.SellRequest{
		ProducerID: producerID,
		HydrogenKg: domain.Round2(in.HydrogenKg),
		Price:      domain.Round2(in.Price),
		Score:      domain.Round2(in.Score),
		ProofDoc:   strings.TrimSpace(in.ProofDoc),
		Status:     domain.SellRequestPending,
	}
	if err := db.Create(req).Error; err != nil {
		return nil, fmt.Errorf("create sell request: %w", err)
	}
	s.Log.Info().Str("request_id", req.RequestID.String()).Str("producer_id", producerID.String()).Msg("sell request created")
	return req, nil
}

// AssignBuyer sets the buyer on a pending request that has none yet.
func (s *Service) AssignBuyer(ctx context.Context, buyerID, requestID uuid.UUID) (*domain.SellRequest, error) {
	db := s.DB.WithContext(ctx)
	if _, err := actors.LoadActive(db, buyerID, constants.Buyer); err != nil {
		return nil, err
	}
	res := db.Model(&domain.SellRequest{}).
		Where("request_id = ? AND status = ? AND buyer_id IS NULL", requestID, domain.SellRequestPending).
		Update("buyer_id", buyerID)
	if res.Error != nil {
		return nil, fmt.Errorf("assign buyer: %w", res.Error)
	}
	req, err := loadRequest(db, requestID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, apperror.ErrBuyerAlreadyAssigned()
	}
	s.Log.Info().Str("request_id", requestID.String()).Str("buyer_id", buyerID.String()).Msg("buyer assigned")
	return req, nil
}

// PendingRequests lists open tenders, oldest first.
func (s *Service) PendingRequests(ctx context.Context, limit int) ([]domain.SellRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []domain.SellRequest
	if err := s.DB.WithContext(ctx).Where("status = ?", domain.SellRequestPending).
		Order("created_at ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list sell requests: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*domain.SellRequest, error) {
	return loadRequest(s.DB.WithContext(ctx), requestID)
}

// FundWallet credits a buyer wallet. Regulators only; it is the sole way funds enter the system.
func (s *Service) FundWallet(ctx context.Context, regulatorID, buyerID uuid.UUID, amount float64) (*domain.Actor, error) {
	if !validation.IsPositive(amount) {
		return nil, apperror.Validation("amount must be a positive number")
	}
	var buyer *domain.Actor
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := actors.LoadActive(tx, regulatorID, constants.Regulator); err != nil {
			return err
		}
		b, err := actors.Load(tx, buyerID)
		if err != nil {
			return err
		}
		if b.Role != constants.Buyer {
			return apperror.Validation("Only buyer wallets can be funded")
		}
		if err := tx.Model(&domain.Actor{}).Where("actor_id = ?", buyerID).
			Update("wallet_balance", gorm.Expr("wallet_balance + ?", domain.Round2(amount))).Error; err != nil {
			return fmt.Errorf("fund wallet: %w", err)
		}
		buyer, err = actors.Load(tx, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("buyer_id", buyerID.String()).Float64("amount", amount).Msg("wallet funded")
	return buyer, nil
}

// BuyerHistory groups a producer's sold requests per buyer.
type BuyerHistory struct {
	BuyerID      uuid.UUID            `json:"buyer_id"`
	BuyerName    string               `json:"buyer_name"`
	Organization string               `json:"organization"`
	TotalBought  float64              `json:"total_bought"`
	TotalSpent   float64              `json:"total_spent"`
	Transactions []domain.SellRequest `json:"transactions"`
}

type ProducerHistory struct {
	Transactions []domain.SellRequest `json:"transactions"`
	Buyers       []BuyerHistory       `json:"buyers"`
}

// ProducerHistory returns sold requests newest first and per-buyer totals in first-seen order.
func (s *Service) ProducerHistory(ctx context.Context, producerID uuid.UUID) (*ProducerHistory, error) {
	db := s.DB.WithContext(ctx)
	var sold []domain.SellRequest
	if err := db.Where("producer_id = ? AND status = ?", producerID, domain.SellRequestSold).
		Order("created_at DESC").Find(&sold).Error; err != nil {
		return nil, fmt.Errorf("list sold requests: %w", err)
	}
	var invoices []domain.Invoice
	if err := db.Where("producer_id = ?", producerID).Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	spent := make(map[uuid.UUID]float64, len(invoices))
	for _, inv := range invoices {
		spent[inv.SellRequestID] = inv.TotalAmount
	}

	out := &ProducerHistory{Transactions: sold, Buyers: []BuyerHistory{}}
	index := map[uuid.UUID]int{}
	for _, req := range sold {
		if req.BuyerID == nil {
			continue
		}
		i, ok := index[*req.BuyerID]
		if !ok {
			entry := BuyerHistory{BuyerID: *req.BuyerID}
			if buyer, err := actors.Load(db, *req.BuyerID); err == nil {
				entry.BuyerName = buyer.Name
				entry.Organization = buyer.Organization
			}
			out.Buyers = append(out.Buyers, entry)
			i = len(out.Buyers) - 1
			index[*req.BuyerID] = i
		}
		b := &out.Buyers[i]
		b.TotalBought = domain.Round2(b.TotalBought + req.HydrogenKg)
		b.TotalSpent = domain.Round2(b.TotalSpent + spent[req.RequestID])
		b.Transactions = append(b.Transactions, req)
	}
	return out, nil
}

// GetInvoice returns an invoice to its producer, its buyer, or an auditor/regulator.
func (s *Service) GetInvoice(ctx context.Context, actorID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	db := s.DB.WithContext(ctx)
	actor, err := actors.Load(db, actorID)
	if err != nil {
		return nil, err
	}
	var inv domain.Invoice
	err = db.Where("invoice_id = ?", invoiceID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Invoice")
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	switch {
	case inv.ProducerID == actorID, inv.BuyerID == actorID:
	case actor.Role == constants.Auditor, actor.Role == constants.Regulator:
	default:
		return nil, apperror.ErrNotAuthorized()
	}
	return &inv, nil
}

func loadRequest(db *gorm.DB, requestID uuid.UUID) (*domain.SellRequest, error) {
	if requestID == uuid.Nil {
		return nil, apperror.Validation("request id is required")
	}
	var req domain.SellRequest
	err := db.Where("request_id = ?", requestID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Sell request")
	}
	if err != nil {
		return nil, fmt.Errorf("load sell request: %w", err)
	}
	return &req, nil
}
