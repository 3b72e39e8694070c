package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func (r repo) addWithIncrement(ctx context.Context, key string, value interface{}) error {
	return r.maxScoreScript.Run(ctx, r.rc, []string{key}, value).Err()
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

func (r repo) exists(ctx context.Context, key string) (bool, error) {
	res, err := r.rc.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return res > 0, nil
}

func isNil(err error) bool {
	return err == redis.Nil
}
