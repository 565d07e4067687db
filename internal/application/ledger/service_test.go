package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/database/dbtest"
	"greencoin-backend/internal/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (*Service, *gorm.DB) {
	db := dbtest.Open(t)
	return &Service{DB: db}, db
}

func TestAppend_RunningBalance(t *testing.T) {
	s, _ := setupLedger(t)
	ctx := context.Background()
	actor := uuid.New()

	e1, err := s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionCredit, Magnitude: 110, Reason: "Generated 110 Green Credit Points"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e1.Sequence)
	assert.Equal(t, 110.0, e1.BalanceAfter)

	e2, err := s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionDebit, Magnitude: 100, Reason: "Sold 100 units"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Sequence)
	assert.Equal(t, 10.0, e2.BalanceAfter)

	e3, err := s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionDebit, Magnitude: 25, Reason: "Sold 25 units"})
	require.NoError(t, err)
	assert.Equal(t, -15.0, e3.BalanceAfter)
}

func TestAppend_Validation(t *testing.T) {
	s, _ := setupLedger(t)
	ctx := context.Background()
	_, err := s.Append(ctx, AppendInput{ActorID: uuid.New(), Direction: "sideways", Magnitude: 1, Reason: "x"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	_, err = s.Append(ctx, AppendInput{ActorID: uuid.New(), Direction: domain.DirectionCredit, Magnitude: -1, Reason: "x"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	_, err = s.Append(ctx, AppendInput{Direction: domain.DirectionCredit, Magnitude: 1, Reason: "x"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestLedgerConservation(t *testing.T) {
	s, _ := setupLedger(t)
	ctx := context.Background()
	actor := uuid.New()

	v, err := s.Verify(ctx, actor)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
	assert.Equal(t, 0, v.Entries)

	moves := []AppendInput{
		{Direction: domain.DirectionCredit, Magnitude: 2500},
		{Direction: domain.DirectionCredit, Magnitude: 10.5},
		{Direction: domain.DirectionDebit, Magnitude: 100},
		{Direction: domain.DirectionDebit, Magnitude: 0},
		{Direction: domain.DirectionCredit, Magnitude: 0.25},
	}
	want := 0.0
	for _, m := range moves {
		m.ActorID = actor
		m.Reason = "move"
		_, err := s.Append(ctx, m)
		require.NoError(t, err)
		if m.Direction == domain.DirectionCredit {
			want += m.Magnitude
		} else {
			want -= m.Magnitude
		}
	}

	entries, err := s.Entries(ctx, actor, 0)
	require.NoError(t, err)
	require.Len(t, entries, len(moves))
	sum := 0.0
	for _, e := range entries {
		sum += e.Signed()
	}
	assert.InDelta(t, want, sum, 1e-9)
	assert.InDelta(t, entries[len(entries)-1].BalanceAfter, sum, 0.005)

	v, err = s.Verify(ctx, actor)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
	assert.InDelta(t, want, v.Stored, 0.005)
}

func TestAppendTx_HeadAdvancesOnlyOnCommit(t *testing.T) {
	_, db := setupLedger(t)
	actor := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		a, err := AppendTx(tx, AppendInput{ActorID: actor, Direction: domain.DirectionCredit, Magnitude: 50, Reason: "first"})
		require.NoError(t, err)
		b, err := AppendTx(tx, AppendInput{ActorID: actor, Direction: domain.DirectionCredit, Magnitude: 20, Reason: "second"})
		require.NoError(t, err)
		assert.Equal(t, a.Sequence+1, b.Sequence)
		assert.Equal(t, 70.0, b.BalanceAfter)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var heads int64
	db.Model(&domain.LedgerHead{}).Where("actor_id = ?", actor).Count(&heads)
	assert.Zero(t, heads)

	var entry *domain.LedgerEntry
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = AppendTx(tx, AppendInput{ActorID: actor, Direction: domain.DirectionDebit, Magnitude: 5, Reason: "after rollback"})
		return err
	}))
	assert.Equal(t, int64(1), entry.Sequence)
	assert.Equal(t, -5.0, entry.BalanceAfter)

	var head domain.LedgerHead
	require.NoError(t, db.Where("actor_id = ?", actor).First(&head).Error)
	assert.Equal(t, int64(1), head.EntryCount)
	assert.Equal(t, -5.0, head.Balance)
}

// The test pool has one connection, so these appends interleave only between transactions;
// TestAppendTx_HeadAdvancesOnlyOnCommit covers the head row directly.
func TestAppend_ConcurrentSameActorSerializes(t *testing.T) {
	s, _ := setupLedger(t)
	ctx := context.Background()
	actor := uuid.New()

	const k = 25
	var wg sync.WaitGroup
	errs := make(chan error, k)
	for i := 1; i <= k; i++ {
		wg.Add(1)
		go func(mag int) {
			defer wg.Done()
			_, err := s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionCredit, Magnitude: float64(mag), Reason: "concurrent"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := s.Entries(ctx, actor, 0)
	require.NoError(t, err)
	require.Len(t, entries, k)

	seen := map[float64]bool{}
	running := 0.0
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Sequence)
		running += e.Magnitude
		assert.InDelta(t, running, e.BalanceAfter, 1e-9)
		assert.False(t, seen[e.BalanceAfter], "duplicate balance_after %v", e.BalanceAfter)
		seen[e.BalanceAfter] = true
	}
	assert.InDelta(t, float64(k*(k+1)/2), running, 1e-9)
}

func TestAppend_ConcurrentDifferentActorsIndependent(t *testing.T) {
	s, _ := setupLedger(t)
	ctx := context.Background()
	actors := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	for _, a := range actors {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(actor uuid.UUID) {
				defer wg.Done()
				_, err := s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionCredit, Magnitude: 1, Reason: "tick"})
				assert.NoError(t, err)
			}(a)
		}
	}
	wg.Wait()

	for _, a := range actors {
		entries, err := s.Entries(ctx, a, 0)
		require.NoError(t, err)
		balances := make([]float64, 0, len(entries))
		for _, e := range entries {
			balances = append(balances, e.BalanceAfter)
		}
		sort.Float64s(balances)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, balances)
	}
}

func TestVerify_DetectsTamperedEntry(t *testing.T) {
	s, db := setupLedger(t)
	ctx := context.Background()
	actor := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionCredit, Magnitude: 10, Reason: "r"})
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(&domain.LedgerEntry{}).Where("actor_id = ? AND sequence = ?", actor, 2).Update("balance_after", 99).Error)

	v, err := s.Verify(ctx, actor)
	require.NoError(t, err)
	assert.False(t, v.Consistent)
	assert.Equal(t, int64(2), v.BrokenAt)
}

func TestSummary_And_PurchaseSummary(t *testing.T) {
	s, db := setupLedger(t)
	ctx := context.Background()
	actor := uuid.New()
	_, err := s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionCredit, Magnitude: 50, Reason: "r"})
	require.NoError(t, err)
	_, err = s.Append(ctx, AppendInput{ActorID: actor, Direction: domain.DirectionDebit, Magnitude: 20, Reason: "r"})
	require.NoError(t, err)

	sum, err := s.Summary(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.TotalTransactions)
	assert.Equal(t, 50.0, sum.TotalCredited)
	assert.Equal(t, 20.0, sum.TotalDebited)
	assert.Equal(t, 30.0, sum.Balance)

	buyer, producer := uuid.New(), uuid.New()
	require.NoError(t, db.Create(&domain.PurchaseLog{TxID: "0x1", ListingID: uuid.New(), CreditID: uuid.New(), BuyerID: buyer, ProducerID: producer, Coins: 2, HydrogenKg: 2500, IsConfirmed: true}).Error)
	require.NoError(t, db.Create(&domain.PurchaseLog{TxID: "0x2", ListingID: uuid.New(), CreditID: uuid.New(), BuyerID: buyer, ProducerID: producer, Coins: 1, HydrogenKg: 1200}).Error)

	ps, err := s.PurchaseSummary(ctx, buyer, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ps.TotalTransactions)
	assert.Equal(t, 3700.0, ps.TotalQuantity)
	assert.Equal(t, int64(3), ps.TotalCoins)
	assert.Equal(t, int64(1), ps.ConfirmedCount)

	pp, err := s.PurchaseSummary(ctx, producer, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pp.TotalTransactions)

	none, err := s.PurchaseSummary(ctx, uuid.New(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), none.TotalTransactions)
}
