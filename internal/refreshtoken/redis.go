package refreshtoken

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/predio-auth/internal/utils"
)

// Redis is a Registry shared by every instance of the service.  Each token
// is a hash at <prefix>:t:<digest> with native expiry; <prefix>:u:<username>
// is a set of the user's digests used by RevokeAll and CountActive.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewRedis returns a registry storing keys under prefix (default "rt").
func NewRedis(rdb *redis.Client, ttl time.Duration, prefix string) *Redis {
	if prefix == "" {
		prefix = "rt"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source used for expiry checks.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

func (r *Redis) tokenKey(hash string) string    { return r.prefix + ":t:" + hash }
func (r *Redis) userKey(username string) string { return r.prefix + ":u:" + username }

func (r *Redis) Create(ctx context.Context, username string) (string, error) {
	raw, err := utils.NewRefreshTokenValue()
	if err != nil {
		return "", err
	}
	hash := utils.HashRefreshRaw(raw)
	now := r.now().UTC()
	exp := now.Add(r.ttl)

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.tokenKey(hash),
			"username", username,
			"expires_at", exp.UnixMilli(),
			"created_at", now.UnixMilli())
		p.PExpireAt(ctx, r.tokenKey(hash), exp)
		p.SAdd(ctx, r.userKey(username), hash)
		p.PExpireAt(ctx, r.userKey(username), exp)
		return nil
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (r *Redis) Validate(ctx context.Context, token string) (bool, error) {
	_, err := r.UsernameFor(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrRefreshTokenInvalid), errors.Is(err, ErrRefreshTokenExpired):
		return false, nil
	default:
		return false, err
	}
}

func (r *Redis) UsernameFor(ctx context.Context, token string) (string, error) {
	hash := utils.HashRefreshRaw(token)
	vals, err := r.rdb.HMGet(ctx, r.tokenKey(hash), "username", "expires_at").Result()
	if err != nil {
		return "", err
	}
	username, _ := vals[0].(string)
	expStr, _ := vals[1].(string)
	if username == "" || expStr == "" {
		return "", ErrRefreshTokenInvalid
	}
	expMs, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", ErrRefreshTokenInvalid
	}
	if !r.now().Before(time.UnixMilli(expMs)) {
		r.evict(ctx, hash, username)
		return "", ErrRefreshTokenExpired
	}
	return username, nil
}

func (r *Redis) Revoke(ctx context.Context, token string) error {
	hash := utils.HashRefreshRaw(token)
	username, err := r.rdb.HGet(ctx, r.tokenKey(hash), "username").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.evict(ctx, hash, username)
}

func (r *Redis) RevokeAll(ctx context.Context, username string) error {
	hashes, err := r.rdb.SMembers(ctx, r.userKey(username)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, r.tokenKey(h))
	}
	keys = append(keys, r.userKey(username))
	return r.rdb.Del(ctx, keys...).Err()
}

// SweepExpired removes records past their expiry by the registry clock and
// prunes user-set members whose token key Redis has already expired.
func (r *Redis) SweepExpired(ctx context.Context) (int, error) {
	now := r.now()
	removed := 0
	iter := r.rdb.Scan(ctx, 0, r.prefix+":u:*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		username := strings.TrimPrefix(userKey, r.prefix+":u:")
		hashes, err := r.rdb.SMembers(ctx, userKey).Result()
		if err != nil {
			return removed, err
		}
		for _, h := range hashes {
			expStr, err := r.rdb.HGet(ctx, r.tokenKey(h), "expires_at").Result()
			if errors.Is(err, redis.Nil) {
				if err := r.rdb.SRem(ctx, userKey, h).Err(); err != nil {
					return removed, err
				}
				removed++
				continue
			}
			if err != nil {
				return removed, err
			}
			expMs, _ := strconv.ParseInt(expStr, 10, 64)
			if !now.Before(time.UnixMilli(expMs)) {
				if err := r.evict(ctx, h, username); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}
	return removed, iter.Err()
}

func (r *Redis) CountActive(ctx context.Context, username string) (int, error) {
	hashes, err := r.rdb.SMembers(ctx, r.userKey(username)).Result()
	if err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	cmds := make([]*redis.StringCmd, len(hashes))
	_, err = r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = p.HGet(ctx, r.tokenKey(h), "expires_at")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	now := r.now()
	n := 0
	for _, cmd := range cmds {
		expMs, err := cmd.Int64()
		if err != nil {
			continue
		}
		if now.Before(time.UnixMilli(expMs)) {
			n++
		}
	}
	return n, nil
}

func (r *Redis) evict(ctx context.Context, hash, username string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.tokenKey(hash))
		p.SRem(ctx, r.userKey(username), hash)
		return nil
	})
	return err
}
