package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/wallxpress/internal/model"
)

const redisSessionPrefix = "session:"

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// TTLで有効期限を管理するため、期限切れエントリはRedis側で自動削除される。
type RedisSessionRepo struct {
	client *redis.Client
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

// Create はセッションを作成する。有効期限はTTLとして設定する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", session.ID)
	}
	if err := r.client.Set(ctx, redisSessionPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	// ユーザー単位の一括削除用にIDをインデックスする
	if err := r.client.SAdd(ctx, redisUserSessionsKey(session.UserID), session.ID).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れまたは不存在の場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, redisSessionPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session := &model.Session{}
	if err := json.Unmarshal([]byte(data), session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

// Update はセッションの有効期限を更新する。
func (r *RedisSessionRepo) Update(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %s", session.ID)
	}
	if err := r.client.Set(ctx, redisSessionPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	session, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if session != nil {
		if err := r.client.SRem(ctx, redisUserSessionsKey(session.UserID), id).Err(); err != nil {
			return fmt.Errorf("failed to unindex session: %w", err)
		}
	}
	if err := r.client.Del(ctx, redisSessionPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, redisUserSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}
	for _, id := range ids {
		if err := r.client.Del(ctx, redisSessionPrefix+id).Err(); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	if err := r.client.Del(ctx, redisUserSessionsKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session index: %w", err)
	}
	return nil
}

// DeleteExpired はTTLによる自動削除に任せるため、インデックスの掃除のみを行う。
// 削除済みIDの件数を返す。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var cleaned int64
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisUserSessionsPrefix+"*", 100).Result()
		if err != nil {
			return cleaned, fmt.Errorf("failed to scan session indexes: %w", err)
		}
		for _, key := range keys {
			ids, err := r.client.SMembers(ctx, key).Result()
			if err != nil {
				return cleaned, fmt.Errorf("failed to list session index: %w", err)
			}
			for _, id := range ids {
				exists, err := r.client.Exists(ctx, redisSessionPrefix+id).Result()
				if err != nil {
					return cleaned, fmt.Errorf("failed to check session: %w", err)
				}
				if exists == 0 {
					if err := r.client.SRem(ctx, key, id).Err(); err != nil {
						return cleaned, fmt.Errorf("failed to unindex session: %w", err)
					}
					cleaned++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return cleaned, nil
}

const redisUserSessionsPrefix = "user_sessions:"

func redisUserSessionsKey(userID string) string {
	return redisUserSessionsPrefix + userID
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
