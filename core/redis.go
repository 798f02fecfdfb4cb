package core

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"bithopper/config"
	"bithopper/model"
)

const Separator = ":"

// Redis stores one hash per stat key plus a set indexing the hashes.
type Redis struct {
	Prefix string
	Client *redis.Client
}

func NewRedis(cfg *config.Redis) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Url,
		Password: cfg.Password,
		DB:       cfg.Database,
		PoolSize: cfg.PoolSize,
	})

	return &Redis{
		Prefix: cfg.Prefix,
		Client: client,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) indexKey() string {
	return strings.Join([]string{r.Prefix, "stats"}, Separator)
}

func (r *Redis) statKey(stat *model.Stat) string {
	return strings.Join([]string{
		r.Prefix, "stat", stat.Pool, stat.Username, stat.Password,
		strconv.FormatFloat(stat.Difficulty, 'g', -1, 64),
	}, Separator)
}

func (r *Redis) UpsertStat(ctx context.Context, stat *model.Stat) error {
	key := r.statKey(stat)
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"pool":       stat.Pool,
			"username":   stat.Username,
			"password":   stat.Password,
			"difficulty": strconv.FormatFloat(stat.Difficulty, 'g', -1, 64),
			"issued":     stat.Issued,
			"accepted":   stat.Accepted,
			"rejected":   stat.Rejected,
			"updated_at": stat.UpdatedAt.Unix(),
		})
		pipe.SAdd(ctx, r.indexKey(), key)
		return nil
	})
	return err
}

func (r *Redis) Stats(ctx context.Context) ([]*model.Stat, error) {
	keys, err := r.Client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}

	stats := make([]*model.Stat, 0, len(keys))
	for _, key := range keys {
		fields, err := r.Client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		stat, err := parseRedisStat(fields)
		if err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func parseRedisStat(fields map[string]string) (*model.Stat, error) {
	stat := &model.Stat{
		Pool:     fields["pool"],
		Username: fields["username"],
		Password: fields["password"],
	}

	var err error
	if stat.Difficulty, err = strconv.ParseFloat(fields["difficulty"], 64); err != nil {
		return nil, err
	}
	if stat.Issued, err = strconv.ParseUint(fields["issued"], 10, 64); err != nil {
		return nil, err
	}
	if stat.Accepted, err = strconv.ParseUint(fields["accepted"], 10, 64); err != nil {
		return nil, err
	}
	if stat.Rejected, err = strconv.ParseUint(fields["rejected"], 10, 64); err != nil {
		return nil, err
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, err
	}
	stat.UpdatedAt = time.Unix(updated, 0)
	return stat, nil
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
