package health

import (
	"context"
	"testing"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/database/dbtest"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectHealth_WithNilDeps(t *testing.T) {
	result := CollectHealth(context.Background(), nil, nil)
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "disconnected", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
	assert.Equal(t, 0, result.Traffic.TotalRequests)
}

func TestCollectHealth_WithMiniredisAndDB(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	db := dbtest.Open(t)
	ctx := context.Background()

	result := CollectHealth(ctx, rdb, db)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.Equal(t, "connected", result.Dependencies["database"].Status)
	assert.Equal(t, "100", result.Traffic.SuccessRate)

	require.NoError(t, rdb.Set(ctx, "health:greencoin:req_total", "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:greencoin:req_errors", "2", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:greencoin:res_time_total", "150.5", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:greencoin:res_count", "10", 0).Err())
	for _, status := range []string{domain.IntentPending, domain.IntentUnknown, domain.IntentUnknown, domain.IntentCompleted} {
		require.NoError(t, db.Create(&domain.SettlementIntent{
			Kind: domain.IntentPurchase, ReferenceID: uuid.New(), ActorID: uuid.New(), Status: status,
		}).Error)
	}

	result = CollectHealth(ctx, rdb, db)
	assert.Equal(t, 10, result.Traffic.TotalRequests)
	assert.Equal(t, 8, result.Traffic.SuccessCount)
	assert.Equal(t, "80.0", result.Traffic.SuccessRate)
	assert.Equal(t, "15.05", result.Traffic.AvgResponseTime)
	assert.Equal(t, int64(1), result.Settlement.Pending)
	assert.Equal(t, int64(2), result.Settlement.Unknown)

	page := RenderDashboardHTML(result)
	assert.Contains(t, page, "GreenCoin · API Status")
	assert.Contains(t, page, "All Systems Operational")
	assert.Contains(t, page, "/health/errors")
}
