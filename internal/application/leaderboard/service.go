package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"greencoin-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SnapshotKey holds the last rebuilt leaderboard as JSON.
const SnapshotKey = "leaderboard:snapshot"

type ProducerRank struct {
	Rank         int       `json:"rank"`
	ActorID      uuid.UUID `json:"actor_id"`
	Name         string    `json:"name"`
	Organization string    `json:"organization"`
	TotalScore   float64   `json:"total_score"`
	Batches      int64     `json:"batches"`
}

type BuyerRank struct {
	Rank          int       `json:"rank"`
	ActorID       uuid.UUID `json:"actor_id"`
	Name          string    `json:"name"`
	Organization  string    `json:"organization"`
	Purchases     int64     `json:"purchases"`
	TotalCoins    int64     `json:"total_coins"`
	TotalHydrogen float64   `json:"total_hydrogen"`
	TotalSpent    float64   `json:"total_spent"`
}

type Snapshot struct {
	Producers   []ProducerRank `json:"producers"`
	Buyers      []BuyerRank    `json:"buyers"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Service ranks producers by summed batch score and buyers by hydrogen bought across both trade paths.
// Rebuild only reads the ledger store; the snapshot lives in Redis when Rdb is set.
type Service struct {
	DB   *gorm.DB
	Rdb  *redis.Client
	Size int
	TTL  time.Duration
	Log  zerolog.Logger
}

func (s *Service) size() int {
	if s.Size <= 0 {
		return 10
	}
	return s.Size
}

// Rebuild recomputes both rankings and refreshes the cached snapshot.
func (s *Service) Rebuild(ctx context.Context) (*Snapshot, error) {
	producers, err := s.rankProducers(ctx)
	if err != nil {
		return nil, err
	}
	buyers, err := s.rankBuyers(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Producers: producers, Buyers: buyers, GeneratedAt: time.Now().UTC()}
	if s.Rdb != nil {
		b, _ := json.Marshal(snap)
		if err := s.Rdb.Set(ctx, SnapshotKey, b, s.TTL).Err(); err != nil {
			s.Log.Warn().Err(err).Msg("leaderboard: cache snapshot failed")
		}
	}
	return snap, nil
}

// Producers returns the cached producer ranking, rebuilding on a cache miss.
func (s *Service) Producers(ctx context.Context) ([]ProducerRank, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Producers, nil
}

// Buyers returns the cached buyer ranking, rebuilding on a cache miss.
func (s *Service) Buyers(ctx context.Context) ([]BuyerRank, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Buyers, nil
}

func (s *Service) snapshot(ctx context.Context) (*Snapshot, error) {
	if s.Rdb != nil {
		b, err := s.Rdb.Get(ctx, SnapshotKey).Bytes()
		switch {
		case err == nil:
			var snap Snapshot
			if jerr := json.Unmarshal(b, &snap); jerr == nil {
				return &snap, nil
			}
		case !errors.Is(err, redis.Nil):
			s.Log.Warn().Err(err).Msg("leaderboard: read snapshot failed")
		}
	}
	return s.Rebuild(ctx)
}

type producerRow struct {
	ProducerID uuid.UUID
	TotalScore float64
	Batches    int64
}

func (s *Service) rankProducers(ctx context.Context) ([]ProducerRank, error) {
	var rows []producerRow
	err := s.DB.WithContext(ctx).Model(&domain.ProductionBatch{}).
		Select("producer_id, SUM(score) AS total_score, COUNT(*) AS batches").
		Group("producer_id").
		Order("total_score DESC, producer_id ASC").
		Limit(s.size()).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rank producers: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProducerID)
	}
	names, err := s.actors(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ProducerRank, 0, len(rows))
	for i, r := range rows {
		a := names[r.ProducerID]
		out = append(out, ProducerRank{
			Rank:         i + 1,
			ActorID:      r.ProducerID,
			Name:         a.Name,
			Organization: a.Organization,
			TotalScore:   domain.Round2(r.TotalScore),
			Batches:      r.Batches,
		})
	}
	return out, nil
}

type buyerRow struct {
	BuyerID       uuid.UUID
	Purchases     int64
	TotalCoins    int64
	TotalHydrogen float64
	TotalSpent    float64
}

// rankBuyers merges marketplace purchases and settled sell-request invoices per buyer.
// Invoices carry no coin count, so buyers rank by hydrogen bought, then spend.
func (s *Service) rankBuyers(ctx context.Context) ([]BuyerRank, error) {
	var market, invoiced []buyerRow
	err := s.DB.WithContext(ctx).Model(&domain.PurchaseLog{}).
		Select("buyer_id, COUNT(*) AS purchases, SUM(coins) AS total_coins, SUM(hydrogen_kg) AS total_hydrogen, SUM(price) AS total_spent").
		Group("buyer_id").
		Scan(&market).Error
	if err != nil {
		return nil, fmt.Errorf("rank buyers: %w", err)
	}
	err = s.DB.WithContext(ctx).Model(&domain.Invoice{}).
		Select("buyer_id, COUNT(*) AS purchases, 0 AS total_coins, SUM(hydrogen_kg) AS total_hydrogen, SUM(total_amount) AS total_spent").
		Group("buyer_id").
		Scan(&invoiced).Error
	if err != nil {
		return nil, fmt.Errorf("rank buyers: invoices: %w", err)
	}

	merged := make(map[uuid.UUID]*buyerRow, len(market)+len(invoiced))
	for _, set := range [][]buyerRow{market, invoiced} {
		for i := range set {
			r := set[i]
			acc, ok := merged[r.BuyerID]
			if !ok {
				merged[r.BuyerID] = &r
				continue
			}
			acc.Purchases += r.Purchases
			acc.TotalCoins += r.TotalCoins
			acc.TotalHydrogen += r.TotalHydrogen
			acc.TotalSpent += r.TotalSpent
		}
	}
	rows := make([]buyerRow, 0, len(merged))
	for _, r := range merged {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TotalHydrogen != b.TotalHydrogen {
			return a.TotalHydrogen > b.TotalHydrogen
		}
		if a.TotalSpent != b.TotalSpent {
			return a.TotalSpent > b.TotalSpent
		}
		return a.BuyerID.String() < b.BuyerID.String()
	})
	if len(rows) > s.size() {
		rows = rows[:s.size()]
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.BuyerID)
	}
	names, err := s.actors(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]BuyerRank, 0, len(rows))
	for i, r := range rows {
		a := names[r.BuyerID]
		out = append(out, BuyerRank{
			Rank:          i + 1,
			ActorID:       r.BuyerID,
			Name:          a.Name,
			Organization:  a.Organization,
			Purchases:     r.Purchases,
			TotalCoins:    r.TotalCoins,
			TotalHydrogen: domain.Round2(r.TotalHydrogen),
			TotalSpent:    domain.Round2(r.TotalSpent),
		})
	}
	return out, nil
}

func (s *Service) actors(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Actor, error) {
	out := make(map[uuid.UUID]domain.Actor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []domain.Actor
	if err := s.DB.WithContext(ctx).Where("actor_id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("load actors: %w", err)
	}
	for _, a := range list {
		out[a.ActorID] = a
	}
	return out, nil
}
