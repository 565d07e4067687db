// Package sensor simulates an electrolyser's IoT feed for development.
package sensor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder receives readings; the ingestion service implements it.
type Recorder interface {
	RecordReading(ctx context.Context, producerID uuid.UUID, r domain.Sample) (*domain.IoTAggregate, error)
}

// Simulator emits one reading per reporting window: the hydrogen and power of that window only.
// The accumulator averages readings, so a batch carries the mean window output.
type Simulator struct {
	Recorder Recorder
	Log      zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(rec Recorder, seed int64, log zerolog.Logger) *Simulator {
	return &Simulator{
		Recorder: rec,
		Log:      log,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Next returns the reading for one window.
func (s *Simulator) Next() domain.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	hydrogen := float64(s.rng.Intn(500) + 900)         // 900..1399 kg
	power := round2(hydrogen * (50 + s.rng.Float64()*5)) // 50..55 kWh per kg
	purity := round2(99.5 + s.rng.Float64()*0.5)
	renewable := round2(90 + s.rng.Float64()*10)
	return domain.Sample{
		HydrogenKg:          hydrogen,
		PurityPct:           purity,
		RenewableSharePct:   renewable,
		PowerConsumptionKWh: power,
		RenewablePowerKWh:   round2(renewable / 100 * power),
	}
}

// Tick records one reading for the producer. A window that lands while a batch mint holds the
// aggregate is skipped.
func (s *Simulator) Tick(ctx context.Context, producerID uuid.UUID) error {
	sample := s.Next()
	if _, err := s.Recorder.RecordReading(ctx, producerID, sample); err != nil {
		if errors.Is(err, apperror.ErrSettlementInProgress()) {
			s.Log.Debug().Str("producer_id", producerID.String()).Msg("sensor: batch in flight, window skipped")
			return nil
		}
		s.Log.Warn().Err(err).Str("producer_id", producerID.String()).Msg("sensor: record reading failed")
		return err
	}
	s.Log.Debug().Str("producer_id", producerID.String()).Float64("hydrogen_kg", sample.HydrogenKg).Msg("sensor: reading recorded")
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
