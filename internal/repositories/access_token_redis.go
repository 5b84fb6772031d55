package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/consensus/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisTokenStore keeps the session registry in Redis. Each session is a
// hash under <prefix>:session:<token hash>, and <prefix>:user_sessions:<uid>
// is the set of a user's session hashes so RevokeAll does not need a scan.
type RedisTokenStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration // 0 keeps sessions until revoked
}

func NewRedisTokenStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisTokenStore) sessionKey(hash string) string {
	return s.key("session:" + hash)
}

func (s *RedisTokenStore) userKey(userID int64) string {
	return s.key("user_sessions:" + strconv.FormatInt(userID, 10))
}

func (s *RedisTokenStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisTokenStore) Save(ctx context.Context, token *models.AccessToken) error {
	key := s.sessionKey(token.TokenHash)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"uid", token.UserID,
			"issued_at", token.IssuedAt.Unix(),
		)
		pipe.SAdd(ctx, s.userKey(token.UserID), token.TokenHash)
		if s.ttl > 0 {
			// the newest session outlives every other member of the set
			pipe.Expire(ctx, key, s.ttl)
			pipe.Expire(ctx, s.userKey(token.UserID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save session: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Lookup(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lookup session: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}

	uid, err := strconv.ParseInt(fields["uid"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: corrupt session %s: %w", tokenHash, err)
	}
	issued, _ := strconv.ParseInt(fields["issued_at"], 10, 64)

	return &models.AccessToken{
		UserID:    uid,
		TokenHash: tokenHash,
		IssuedAt:  time.Unix(issued, 0),
	}, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, tokenHash string) error {
	key := s.sessionKey(tokenHash)

	uid, err := s.client.HGet(ctx, key, "uid").Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, s.userKey(uid), tokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	setKey := s.userKey(userID)

	hashes, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: list sessions: %w", err)
	}

	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(hashes))
	members := make([]any, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, s.sessionKey(h))
		members = append(members, h)
	}

	// SRem only the snapshot so a session saved meanwhile stays revocable
	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, setKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: revoke sessions: %w", err)
	}

	return deleted.Val(), nil
}
