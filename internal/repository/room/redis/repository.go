package redis

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc             *redis.Client
	logger         *slog.Logger
	maxScoreScript *redis.Script
	expireDuration time.Duration
}

// NewRepo stores rooms in redis. Keys expire after expireDuration: each write
// refreshes the key it touches and a playback write refreshes all of the
// room's keys, so abandoned rooms disappear on their own.
func NewRepo(rc *redis.Client, logger *slog.Logger, expireDuration time.Duration) *repo {
	return &repo{
		rc:     rc,
		logger: logger,
		// adds ARGV[1] to the sorted set with the next join sequence number
		maxScoreScript: redis.NewScript(`
			local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
			local nextScore = 1
			if #maxScore > 0 then
				nextScore = tonumber(maxScore[2]) + 1
			end
			redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
			return nextScore
		`),
		expireDuration: expireDuration,
	}
}
