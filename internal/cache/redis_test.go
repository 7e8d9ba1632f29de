package cache

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testTimeout — общий дедлайн на операции с Redis в тестах.
const testTimeout = 10 * time.Second

// TestMain поднимает Redis в контейнере один раз на пакет, если задан
// GO_TEST_INTEGRATION. Адрес прокидывается в ENV REDIS_URL; без него
// Redis-тесты пропускаются, а тесты MemoryCache выполняются всегда.
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis testcontainer: %v\n", err)
		os.Exit(1)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		_ = redisC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := redisC.MappedPort(ctx, "6379/tcp")
	if err != nil {
		_ = redisC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get mapped port: %v\n", err)
		os.Exit(1)
	}

	_ = os.Setenv("REDIS_URL", fmt.Sprintf("redis://%s:%s/0", host, port.Port()))

	code := m.Run()

	_ = redisC.Terminate(context.Background())
	os.Exit(code)
}

// mustNewRedis создаёт кэш с уникальным префиксом, чтобы тесты не пересекались.
func mustNewRedis(t *testing.T) *RedisCache {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set; run with GO_TEST_INTEGRATION=1")
	}

	c, err := NewRedisCache(url, "test:"+uuid.NewString()+":", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Ping(ctx))

	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRedisCache_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisCache("not-a-url", "", 0)
	require.Error(t, err)
}

func TestRedisCache_SetGet(t *testing.T) {
	c := mustNewRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	e := entryFor("u-1")
	require.NoError(t, c.Set(ctx, "sid-1", e, time.Minute))

	got, found, err := c.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, e.Status, got.Status)
	require.Equal(t, e.AccessToken, got.AccessToken)
	require.Equal(t, e.RefreshToken, got.RefreshToken)
	require.Equal(t, e.User, got.User)
	require.Equal(t, e.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	_, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisCache_TTLExpires(t *testing.T) {
	c := mustNewRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, c.Set(ctx, "sid-ttl", entryFor("u-ttl"), time.Second))

	require.Eventually(t, func() bool {
		_, found, err := c.Get(ctx, "sid-ttl")
		return err == nil && !found
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisCache_FailedLoginHasNoUser(t *testing.T) {
	c := mustNewRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, c.Set(ctx, "sid-401", &Entry{Status: 401}, time.Minute))

	got, found, err := c.Get(ctx, "sid-401")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 401, got.Status)
	require.Nil(t, got.User)
}

func TestRedisCache_EvictBySessionAndUser(t *testing.T) {
	c := mustNewRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, c.Set(ctx, "a1", entryFor("alice"), time.Minute))
	require.NoError(t, c.Set(ctx, "a2", entryFor("alice"), time.Minute))
	require.NoError(t, c.Set(ctx, "b1", entryFor("bob"), time.Minute))

	require.NoError(t, c.EvictBySession(ctx, "a1"))
	_, found, _ := c.Get(ctx, "a1")
	require.False(t, found)

	members, err := c.rdb.SMembers(ctx, c.userKey("alice")).Result()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a2"}, members)

	require.NoError(t, c.EvictByUser(ctx, "alice"))
	_, found, _ = c.Get(ctx, "a2")
	require.False(t, found)

	n, err := c.rdb.Exists(ctx, c.userKey("alice")).Result()
	require.NoError(t, err)
	require.Zero(t, n)

	_, found, _ = c.Get(ctx, "b1")
	require.True(t, found)
}

func TestRedisCache_OverwriteMovesUserIndex(t *testing.T) {
	c := mustNewRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, c.Set(ctx, "s1", entryFor("alice"), time.Minute))
	require.NoError(t, c.Set(ctx, "s1", entryFor("bob"), time.Minute))

	isAlice, err := c.rdb.SIsMember(ctx, c.userKey("alice"), "s1").Result()
	require.NoError(t, err)
	require.False(t, isAlice)

	isBob, err := c.rdb.SIsMember(ctx, c.userKey("bob"), "s1").Result()
	require.NoError(t, err)
	require.True(t, isBob)

	// Выселение alice не задевает чужую теперь сессию.
	require.NoError(t, c.EvictByUser(ctx, "alice"))
	_, found, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
}

func TestRedisCache_EvictBySession_CorruptEntry(t *testing.T) {
	c := mustNewRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, c.Set(ctx, "bad", entryFor("carol"), time.Minute))
	require.NoError(t, c.rdb.HSet(ctx, c.key("bad"), "st", "not-a-number").Err())

	_, _, err := c.Get(ctx, "bad")
	require.Error(t, err)

	require.NoError(t, c.EvictBySession(ctx, "bad"))

	n, err := c.rdb.Exists(ctx, c.key("bad")).Result()
	require.NoError(t, err)
	require.Zero(t, n)

	isMember, err := c.rdb.SIsMember(ctx, c.userKey("carol"), "bad").Result()
	require.NoError(t, err)
	require.False(t, isMember)
}

// silentRedis принимает TCP-соединения и никогда не отвечает.
func silentRedis(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	return "redis://" + ln.Addr().String() + "/0"
}

func TestRedisCache_SilentServerBoundedByTimeouts(t *testing.T) {
	t.Parallel()

	c, err := NewRedisCache(silentRedis(t), "", 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	t.Run("op_timeout", func(t *testing.T) {
		start := time.Now()
		_, _, err := c.Get(context.Background(), "sid")
		require.Error(t, err)
		require.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("context_deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		require.Error(t, c.EvictBySession(ctx, "sid"))
		require.Less(t, time.Since(start), time.Second)
	})
}
