package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/storefront-session/internal/models"
)

// RedisCache — SessionCache поверх Redis.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "session:". opTimeout > 0 ограничивает
// dial/read/write одной команды; дедлайн контекста соблюдается всегда.
// Связность на старте не проверяется, см. Ping.
func NewRedisCache(redisURL, prefix string, opTimeout time.Duration) (*RedisCache, error) {
	if prefix == "" {
		prefix = "session:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	opt.ContextTimeoutEnabled = true
	if opTimeout > 0 {
		opt.DialTimeout = opTimeout
		opt.ReadTimeout = opTimeout
		opt.WriteTimeout = opTimeout
	}

	return &RedisCache{rdb: redis.NewClient(opt), prefix: prefix}, nil
}

// Ping проверяет связность с Redis.
func (c *RedisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *RedisCache) key(sessionID string) string { return c.prefix + "res:" + sessionID }

func (c *RedisCache) userKey(userID string) string { return c.prefix + "user:" + userID }

// Храним как Redis Hash с полями: st (HTTP-статус), at, rt, usr (JSON), ts (unix-ms).
func (c *RedisCache) Set(ctx context.Context, sessionID string, e *Entry, ttl time.Duration) error {
	if sessionID == "" {
		return ErrEmptyKey
	}

	var usr []byte
	if e.User != nil {
		b, err := json.Marshal(e.User)
		if err != nil {
			return fmt.Errorf("cache.redis.Set: %w", err)
		}
		usr = b
	}

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	kv := map[string]string{
		"st":  strconv.Itoa(e.Status),
		"at":  e.AccessToken,
		"rt":  e.RefreshToken,
		"usr": string(usr),
		"ts":  strconv.FormatInt(created.UnixMilli(), 10),
	}

	uid := e.UserID()
	prev := c.storedUserID(ctx, sessionID)

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(sessionID), kv)
	pipe.Expire(ctx, c.key(sessionID), ttl)

	if prev != "" && prev != uid {
		pipe.SRem(ctx, c.userKey(prev), sessionID)
	}
	if uid != "" {
		// Индекс живёт не дольше самой свежей записи пользователя.
		pipe.SAdd(ctx, c.userKey(uid), sessionID)
		pipe.Expire(ctx, c.userKey(uid), ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (*Entry, bool, error) {
	if sessionID == "" {
		return nil, false, ErrEmptyKey
	}

	m, err := c.rdb.HGetAll(ctx, c.key(sessionID)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	st, err := strconv.Atoi(m["st"])
	if err != nil {
		return nil, false, err
	}

	ts, err := strconv.ParseInt(m["ts"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	e := &Entry{
		Status:       st,
		AccessToken:  m["at"],
		RefreshToken: m["rt"],
		CreatedAt:    time.UnixMilli(ts).UTC(),
	}

	if raw := m["usr"]; raw != "" {
		var u models.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, false, err
		}
		e.User = &u
	}

	return e, true, nil
}

// EvictBySession удаляет запись всегда; ссылка из индекса пользователя
// снимается, только если поле usr читается.
func (c *RedisCache) EvictBySession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptyKey
	}

	uid := c.storedUserID(ctx, sessionID)

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, c.key(sessionID))
	if uid != "" {
		pipe.SRem(ctx, c.userKey(uid), sessionID)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) EvictByUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyKey
	}

	ids, err := c.rdb.SMembers(ctx, c.userKey(userID)).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}
	keys = append(keys, c.userKey(userID))

	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

// storedUserID читает пользователя записи; "" при отсутствии записи или любой ошибке.
func (c *RedisCache) storedUserID(ctx context.Context, sessionID string) string {
	raw, err := c.rdb.HGet(ctx, c.key(sessionID), "usr").Result()
	if err != nil || raw == "" {
		return ""
	}

	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return ""
	}

	return u.ID
}
