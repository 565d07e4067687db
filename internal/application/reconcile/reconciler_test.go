package reconcile

import (
	"context"
	"testing"
	"time"

	"greencoin-backend/internal/application/intents"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/database/dbtest"
	"greencoin-backend/internal/infrastructure/external"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingResolver struct {
	db        *gorm.DB
	completed map[uuid.UUID]string
	aborted   []uuid.UUID
}

func (r *recordingResolver) CompleteIntent(ctx context.Context, intent *domain.SettlementIntent, txID string) error {
	if err := intents.Complete(r.db, intent.IntentID, txID); err != nil {
		return err
	}
	r.completed[intent.IntentID] = txID
	return nil
}

func (r *recordingResolver) AbortIntent(ctx context.Context, intent *domain.SettlementIntent, reason error) error {
	if err := intents.Fail(r.db, intent.IntentID, reason); err != nil {
		return err
	}
	r.aborted = append(r.aborted, intent.IntentID)
	return nil
}

func begin(t *testing.T, db *gorm.DB, kind string) *domain.SettlementIntent {
	t.Helper()
	intent, err := intents.Begin(db, intents.BeginInput{Kind: kind, ReferenceID: uuid.New(), ActorID: uuid.New(), Amount: 1})
	require.NoError(t, err)
	return intent
}

func TestRun_CompletesFoundAndAbortsMissing(t *testing.T) {
	db := dbtest.Open(t)
	chain := external.NewLocalChain()
	resolver := &recordingResolver{db: db, completed: map[uuid.UUID]string{}}

	landed := begin(t, db, domain.IntentPurchase)
	lost := begin(t, db, domain.IntentPurchase)
	orphan := begin(t, db, "unknown_kind")
	require.NoError(t, intents.MarkUnknown(db, landed.IntentID, external.ErrTimeout))

	txID, err := chain.Transfer(context.Background(), external.TransferRequest{Reference: landed.IntentID.String(), Amount: 1})
	require.NoError(t, err)

	r := &Reconciler{
		DB:        db,
		Chain:     chain,
		Resolvers: map[string]Resolver{domain.IntentPurchase: resolver},
		After:     time.Minute,
		Now:       func() time.Time { return time.Now().Add(time.Hour) },
	}
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Aborted)
	assert.Equal(t, 1, report.Skipped)

	assert.Equal(t, txID, resolver.completed[landed.IntentID])
	assert.Equal(t, []uuid.UUID{lost.IntentID}, resolver.aborted)

	got, err := intents.Get(db, orphan.IntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentPending, got.Status)

	// Resolved intents are not picked up again.
	report, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
}

func TestRun_LeavesFreshIntents(t *testing.T) {
	db := dbtest.Open(t)
	resolver := &recordingResolver{db: db, completed: map[uuid.UUID]string{}}
	begin(t, db, domain.IntentConfirmBuy)

	r := &Reconciler{
		DB:        db,
		Chain:     external.NewLocalChain(),
		Resolvers: map[string]Resolver{domain.IntentConfirmBuy: resolver},
		After:     time.Minute,
	}
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Empty(t, resolver.aborted)
}
