package policies

import (
	"context"

	"greencoin-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const actorSessionsPrefix = "actor_sessions:"

// TrackSession records sessionID under the actor so it can be revoked later.
func TrackSession(ctx context.Context, rdb *redis.Client, actorID, sessionID string) error {
	if rdb == nil || actorID == "" || sessionID == "" {
		return nil
	}
	key := actorSessionsPrefix + actorID
	pipe := rdb.TxPipeline()
	pipe.SAdd(ctx, key, sessionID)
	pipe.Expire(ctx, key, middleware.SessionMaxAge)
	_, err := pipe.Exec(ctx)
	return err
}

// ForgetSession drops one session from the actor's set, on logout.
func ForgetSession(ctx context.Context, rdb *redis.Client, actorID, sessionID string) {
	if rdb == nil || actorID == "" || sessionID == "" {
		return
	}
	rdb.SRem(ctx, actorSessionsPrefix+actorID, sessionID)
}

// DestroyActorSessions deletes every session the actor holds and returns how many were removed.
func DestroyActorSessions(ctx context.Context, rdb *redis.Client, actorID string) int {
	if rdb == nil || actorID == "" {
		return 0
	}
	key := actorSessionsPrefix + actorID
	sessionIDs, err := rdb.SMembers(ctx, key).Result()
	if err != nil || len(sessionIDs) == 0 {
		rdb.Del(ctx, key)
		return 0
	}
	keys := make([]string, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		keys = append(keys, middleware.SessionRedisPrefix+sid)
	}
	n, _ := rdb.Del(ctx, keys...).Result()
	rdb.Del(ctx, key)
	return int(n)
}
