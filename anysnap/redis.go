package anysnap

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis.
//
// Snapshot payloads live under "<prefix>:snapshot:<id>",
// and the sorted set "<prefix>:snapshots" indexes them by
// id.
// Saving and evicting happen in one MULTI/EXEC
// transaction.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	Keep   int
}

// NewRedisStore creates a store around a client.
func NewRedisStore(client *redis.Client, prefix string, keep int) *RedisStore {
	return &RedisStore{Client: client, Prefix: prefix, Keep: keep}
}

// Save stores the snapshot and evicts old ones.
func (r *RedisStore) Save(ctx context.Context, id int, data []byte) error {
	ids, err := r.ids(ctx)
	if err != nil {
		return errors.Wrapf(err, "save snapshot %d", id)
	}
	ids = insertID(ids, id)
	evicted := evictions(ids, r.Keep)

	_, err = r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.dataKey(id), data, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(id), Member: strconv.Itoa(id)})
		for _, old := range evicted {
			pipe.Del(ctx, r.dataKey(old))
			pipe.ZRem(ctx, r.indexKey(), strconv.Itoa(old))
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save snapshot %d", id)
	}
	return nil
}

// Load reads a snapshot payload.
func (r *RedisStore) Load(ctx context.Context, id int) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.dataKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(ErrNotFound, "snapshot %d under %s", id, r.Prefix)
	} else if err != nil {
		return nil, errors.Wrapf(err, "load snapshot %d", id)
	}
	return data, nil
}

// Latest reads the highest indexed id.
func (r *RedisStore) Latest(ctx context.Context) (int, error) {
	res, err := r.Client.ZRevRangeWithScores(ctx, r.indexKey(), 0, 0).Result()
	if err != nil {
		return 0, errors.Wrap(err, "list snapshots")
	}
	if len(res) == 0 {
		return 0, errors.Wrapf(ErrNotFound, "no snapshots under %s", r.Prefix)
	}
	return int(res[0].Score), nil
}

func (r *RedisStore) ids(ctx context.Context) ([]int, error) {
	res, err := r.Client.ZRangeWithScores(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(res))
	for i, z := range res {
		ids[i] = int(z.Score)
	}
	return ids, nil
}

func (r *RedisStore) dataKey(id int) string {
	return r.Prefix + ":snapshot:" + strconv.Itoa(id)
}

func (r *RedisStore) indexKey() string {
	return r.Prefix + ":snapshots"
}

// insertID adds id to a sorted list unless it is already
// present.
func insertID(ids []int, id int) []int {
	for i, x := range ids {
		if x == id {
			return ids
		} else if x > id {
			res := append(append(append([]int{}, ids[:i]...), id), ids[i:]...)
			return res
		}
	}
	return append(ids, id)
}
