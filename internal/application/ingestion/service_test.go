package ingestion

import (
	"context"
	"fmt"
	"testing"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/database/dbtest"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/infrastructure/external/mocks"
	"greencoin-backend/internal/infrastructure/notify"
	"greencoin-backend/internal/infrastructure/notify/notifytest"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"
)

type ingestionDeps struct {
	svc      *Service
	db       *gorm.DB
	store    *mocks.MockContentStore
	chain    *mocks.MockChain
	events   *notifytest.Recorder
	producer domain.Actor
}

func setupIngestion(t *testing.T) *ingestionDeps {
	db := dbtest.Open(t)
	ctrl := gomock.NewController(t)
	d := &ingestionDeps{
		db:      db,
		store:   mocks.NewMockContentStore(ctrl),
		chain:   mocks.NewMockChain(ctrl),
		events:  &notifytest.Recorder{},
	}
	d.svc = &Service{
		DB:          db,
		Accumulator: &GormAccumulator{DB: db},
		Store:       d.store,
		Chain:       d.chain,
		Notifier:    d.events,
	}
	d.producer = domain.Actor{Username: "plant1", PasswordHash: "x", Name: "Plant One", Role: constants.Producer}
	require.NoError(t, db.Create(&d.producer).Error)
	return d
}

func (d *ingestionDeps) record(t *testing.T, samples ...domain.Sample) {
	t.Helper()
	for _, s := range samples {
		_, err := d.svc.RecordReading(context.Background(), d.producer.ActorID, s)
		require.NoError(t, err)
	}
}

func TestRecordReading_RunningMean(t *testing.T) {
	d := setupIngestion(t)
	d.record(t,
		domain.Sample{HydrogenKg: 2000, PurityPct: 99, RenewableSharePct: 96, PowerConsumptionKWh: 100, RenewablePowerKWh: 90},
		domain.Sample{HydrogenKg: 3000, PurityPct: 97, RenewableSharePct: 98, PowerConsumptionKWh: 200, RenewablePowerKWh: 190},
		domain.Sample{HydrogenKg: 2500, PurityPct: 98, RenewableSharePct: 97, PowerConsumptionKWh: 150, RenewablePowerKWh: 140},
	)
	agg, err := d.svc.Latest(context.Background(), d.producer.ActorID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.SampleCount)
	assert.InDelta(t, 2500, agg.HydrogenKg, 1e-9)
	assert.InDelta(t, 98, agg.PurityPct, 1e-9)
	assert.InDelta(t, 97, agg.RenewableSharePct, 1e-9)
	assert.InDelta(t, 150, agg.PowerConsumptionKWh, 1e-9)

	require.NoError(t, d.svc.Accumulator.Reset(context.Background(), d.producer.ActorID))
	_, err = d.svc.Latest(context.Background(), d.producer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrNoDataAvailable())
}

func TestRecordReading_RejectsBadInput(t *testing.T) {
	d := setupIngestion(t)
	_, err := d.svc.RecordReading(context.Background(), d.producer.ActorID, domain.Sample{HydrogenKg: -1})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	_, err = d.svc.RecordReading(context.Background(), d.producer.ActorID, domain.Sample{HydrogenKg: 1, PurityPct: 120})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestSubmitBatch_NoDataAvailable(t *testing.T) {
	d := setupIngestion(t)
	_, err := d.svc.SubmitBatch(context.Background(), d.producer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrNoDataAvailable())
}

func TestSubmitBatch_Success(t *testing.T) {
	d := setupIngestion(t)
	ctx := context.Background()
	d.record(t,
		domain.Sample{HydrogenKg: 2000, PurityPct: 99, RenewableSharePct: 96},
		domain.Sample{HydrogenKg: 3000, PurityPct: 99, RenewableSharePct: 98},
	)

	d.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("bafk-batch-1", nil)
	d.chain.EXPECT().Mint(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req external.MintRequest) (string, error) {
		assert.Equal(t, d.producer.ActorID, req.Beneficiary)
		assert.InDelta(t, 2500, req.Amount, 1e-9)
		assert.Equal(t, "bafk-batch-1", req.Proof)
		assert.NotEmpty(t, req.Reference)
		return "0xmint1", nil
	})

	batch, err := d.svc.SubmitBatch(ctx, d.producer.ActorID)
	require.NoError(t, err)
	assert.InDelta(t, 2510, batch.Score, 1e-9)
	assert.Equal(t, "0xmint1", batch.MintTxID)
	assert.Equal(t, "bafk-batch-1", batch.ContentID)

	var entries []domain.LedgerEntry
	require.NoError(t, d.db.Where("actor_id = ?", d.producer.ActorID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DirectionCredit, entries[0].Direction)
	assert.InDelta(t, 2510, entries[0].BalanceAfter, 1e-9)
	assert.Equal(t, "Generated 2510 Green Credit Points", entries[0].Reason)

	var producer domain.Actor
	require.NoError(t, d.db.Where("actor_id = ?", d.producer.ActorID).First(&producer).Error)
	assert.InDelta(t, 2510, producer.Score, 1e-9)

	_, err = d.svc.Latest(ctx, d.producer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrNoDataAvailable())

	assert.ElementsMatch(t, []string{notify.LedgerAppended, notify.BatchCreated}, d.events.Types())
	appended := d.events.Of(notify.LedgerAppended)
	require.Len(t, appended, 1)
	assert.Equal(t, d.producer.ActorID.String(), appended[0].ActorID)
	assert.Equal(t, entries[0].EntryID, appended[0].Data.(*domain.LedgerEntry).EntryID)

	var intent domain.SettlementIntent
	require.NoError(t, d.db.Where("intent_id = ?", batch.IntentID).First(&intent).Error)
	assert.Equal(t, domain.IntentCompleted, intent.Status)
}

func TestRecordReading_RefusedWhileBatchClaimed(t *testing.T) {
	d := setupIngestion(t)
	ctx := context.Background()
	d.record(t,
		domain.Sample{HydrogenKg: 2000, PurityPct: 99, RenewableSharePct: 96},
		domain.Sample{HydrogenKg: 2000, PurityPct: 99, RenewableSharePct: 96},
	)

	d.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("bafk-claimed", nil)
	d.chain.EXPECT().Mint(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, req external.MintRequest) (string, error) {
		_, err := d.svc.RecordReading(ctx, d.producer.ActorID, domain.Sample{HydrogenKg: 4000, PurityPct: 99, RenewableSharePct: 96})
		assert.ErrorIs(t, err, apperror.ErrSettlementInProgress())
		return "0xmint-claimed", nil
	})

	batch, err := d.svc.SubmitBatch(ctx, d.producer.ActorID)
	require.NoError(t, err)
	assert.InDelta(t, 2000, batch.HydrogenKg, 1e-9)

	_, err = d.svc.Latest(ctx, d.producer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrNoDataAvailable())

	// Once the batch resolves the aggregate accepts readings again.
	d.record(t, domain.Sample{HydrogenKg: 4000, PurityPct: 99, RenewableSharePct: 96})
	agg, err := d.svc.Latest(ctx, d.producer.ActorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.SampleCount)
	assert.InDelta(t, 4000, agg.HydrogenKg, 1e-9)
}

func TestRecordReading_RefusedWhileMintUnknown(t *testing.T) {
	d := setupIngestion(t)
	ctx := context.Background()
	d.record(t, domain.Sample{HydrogenKg: 1200})
	d.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("bafk-u", nil)
	d.chain.EXPECT().Mint(gomock.Any(), gomock.Any()).Return("", fmt.Errorf("chain mint: %w", external.ErrTimeout))
	_, err := d.svc.SubmitBatch(ctx, d.producer.ActorID)
	require.Error(t, err)

	_, err = d.svc.RecordReading(ctx, d.producer.ActorID, domain.Sample{HydrogenKg: 900})
	assert.ErrorIs(t, err, apperror.ErrSettlementInProgress())

	agg, err := d.svc.Latest(ctx, d.producer.ActorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.SampleCount)
	assert.InDelta(t, 1200, agg.HydrogenKg, 1e-9)
}

func TestSubmitBatch_MintFailureLeavesNoRows(t *testing.T) {
	d := setupIngestion(t)
	ctx := context.Background()
	d.record(t, domain.Sample{HydrogenKg: 1500, RenewableSharePct: 50})

	d.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("bafk-2", nil)
	d.chain.EXPECT().Mint(gomock.Any(), gomock.Any()).Return("", fmt.Errorf("chain mint: %w", external.ErrRejected))

	_, err := d.svc.SubmitBatch(ctx, d.producer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrUpstreamMintFailure(nil))

	var batches, entries int64
	d.db.Model(&domain.ProductionBatch{}).Count(&batches)
	d.db.Model(&domain.LedgerEntry{}).Count(&entries)
	assert.Zero(t, batches)
	assert.Zero(t, entries)

	agg, err := d.svc.Latest(ctx, d.producer.ActorID)
	require.NoError(t, err)
	assert.Nil(t, agg.PendingIntentID)
	assert.Empty(t, d.events.Types())

	var failed int64
	d.db.Model(&domain.SettlementIntent{}).Where("status = ?", domain.IntentFailed).Count(&failed)
	assert.Equal(t, int64(1), failed)
}

func TestSubmitBatch_StoreFailureSkipsChain(t *testing.T) {
	d := setupIngestion(t)
	d.record(t, domain.Sample{HydrogenKg: 1500})
	d.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("", fmt.Errorf("store: %w", external.ErrRejected))

	_, err := d.svc.SubmitBatch(context.Background(), d.producer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrUpstreamStoreFailure(nil))
}

func TestSubmitBatch_TimeoutThenReconciledCompletion(t *testing.T) {
	d := setupIngestion(t)
	ctx := context.Background()
	d.record(t, domain.Sample{HydrogenKg: 1200, RenewableSharePct: 99})

	d.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("bafk-3", nil)
	d.chain.EXPECT().Mint(gomock.Any(), gomock.Any()).Return("", fmt.Errorf("chain mint: %w", external.ErrTimeout))

	_, err := d.svc.SubmitBatch(ctx, d.producer.ActorID)
	assert.Equal(t, apperror.KindUpstreamTimeout, apperror.KindOf(err))

	// The aggregate stays claimed until the unknown mint is resolved.
	_, err = d.svc.SubmitBatch(ctx, d.producer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrSettlementInProgress())

	var intent domain.SettlementIntent
	require.NoError(t, d.db.Where("kind = ?", domain.IntentBatchMint).First(&intent).Error)
	assert.Equal(t, domain.IntentUnknown, intent.Status)

	require.NoError(t, d.svc.CompleteIntent(ctx, &intent, "0xlate"))

	stats, err := d.svc.ProducerStats(ctx, d.producer.ActorID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalBatches)
	assert.InDelta(t, 1210, stats.TotalScore, 1e-9)
	assert.InDelta(t, 1200, stats.TotalCoins, 1e-9)
	assert.Equal(t, "0xlate", stats.History[0].MintTxID)

	// A second resolution is refused.
	assert.Error(t, d.svc.CompleteIntent(ctx, &intent, "0xlate"))
}

func TestAbortIntent_KeepsReadings(t *testing.T) {
	d := setupIngestion(t)
	ctx := context.Background()
	d.record(t, domain.Sample{HydrogenKg: 1200})
	d.store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("bafk-4", nil)
	d.chain.EXPECT().Mint(gomock.Any(), gomock.Any()).Return("", context.DeadlineExceeded)

	_, err := d.svc.SubmitBatch(ctx, d.producer.ActorID)
	require.Error(t, err)

	var intent domain.SettlementIntent
	require.NoError(t, d.db.Where("kind = ?", domain.IntentBatchMint).First(&intent).Error)
	require.NoError(t, d.svc.AbortIntent(ctx, &intent, fmt.Errorf("not found on chain")))

	agg, err := d.svc.Latest(ctx, d.producer.ActorID)
	require.NoError(t, err)
	assert.Nil(t, agg.PendingIntentID)
	assert.Equal(t, int64(1), agg.SampleCount)
}

func TestSubmitBatch_RejectsNonProducer(t *testing.T) {
	d := setupIngestion(t)
	buyer := domain.Actor{Username: "b1", PasswordHash: "x", Name: "B", Role: constants.Buyer}
	require.NoError(t, d.db.Create(&buyer).Error)
	_, err := d.svc.SubmitBatch(context.Background(), buyer.ActorID)
	assert.ErrorIs(t, err, apperror.ErrNotAuthorized())
}
